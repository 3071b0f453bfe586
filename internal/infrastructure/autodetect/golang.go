package autodetect

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/felixgeelhaar/devwatch/internal/application"
)

// GoProject builds a Go module's main package into bin/.
type GoProject struct{}

func (GoProject) Name() string { return "go" }

func (GoProject) Detect(root string) bool {
	return hasAny(root, "go.mod", "go.work")
}

// Configure prefers a main package at the module root, then the first
// cmd/<name> directory. Release args are only set for the root package since
// go build requires flags before the package path.
func (GoProject) Configure(root string, cfg *application.Config) error {
	name := "server"
	if data, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		if modPath := modfile.ModulePath(data); modPath != "" {
			name = path.Base(modPath)
		}
	}

	cfg.Watch.Include = []string{"**/*.go", "go.mod", "go.sum", "go.work"}
	cfg.Watch.Ignore = []string{"bin/**", "vendor/**"}
	cfg.Build.ReleaseArgs = nil

	binary := "bin/" + name
	switch {
	case isMainPackage(root):
		cfg.Build.Command = []string{"go", "build", "-o", binary}
		cfg.Build.ReleaseArgs = []string{"-trimpath", "-ldflags=-s -w"}
	default:
		if cmd := firstCommand(root); cmd != "" {
			binary = "bin/" + cmd
			cfg.Build.Command = []string{"go", "build", "-o", binary, "./cmd/" + cmd}
		} else {
			cfg.Build.Command = []string{"go", "build", "-o", binary, "."}
		}
	}
	cfg.Run.Command = []string{"./" + binary}
	return nil
}

func isMainPackage(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		if packageClause(filepath.Join(dir, name)) == "main" {
			return true
		}
	}
	return false
}

// packageClause returns the package name declared by a Go source file.
func packageClause(file string) string {
	// #nosec G304 -- path comes from a directory listing of the project root
	f, err := os.Open(file)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "package "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func firstCommand(root string) string {
	entries, err := os.ReadDir(filepath.Join(root, "cmd"))
	if err != nil {
		return ""
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && isMainPackage(filepath.Join(root, "cmd", entry.Name())) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}
