// Package pathutil resolves the paths named in a devwatch configuration.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath = errors.New("path is empty")
	ErrNullBytes = errors.New("path contains null bytes")
)

// ValidatePath cleans path and resolves symlinks when it exists. A path that
// does not exist yet is returned cleaned.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(path, "\x00") {
		return "", ErrNullBytes
	}
	cleaned := filepath.Clean(path)
	realPath, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned, nil
	}
	return realPath, nil
}

// Resolve interprets p relative to base. Absolute paths are returned as is
// and an empty p means base itself.
func Resolve(base, p string) string {
	switch {
	case p == "":
		return base
	case filepath.IsAbs(p) || base == "":
		return p
	default:
		return filepath.Join(base, p)
	}
}

// Rel returns target relative to root using forward slashes. It reports
// false when target lies outside root.
func Rel(root, target string) (string, bool) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
