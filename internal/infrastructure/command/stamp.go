package command

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// WriteStamp records buildID in path, replacing the previous content
// atomically so a server polling the file never sees a partial ID.
func WriteStamp(path, buildID string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(buildID + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadStamp returns the build ID stored in path, or "" if there is none yet.
func ReadStamp(path string) (string, error) {
	// #nosec G304 -- Path is derived from trusted config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
