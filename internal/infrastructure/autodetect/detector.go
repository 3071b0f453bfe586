// Package autodetect proposes a devwatch configuration from the marker files
// found in a project root.
//
// Each supported ecosystem is a Project. The Detector tries them in order and
// the first whose markers exist configures the build and run commands.
package autodetect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/devwatch/internal/application"
)

// Project knows how to build and run one kind of project.
type Project interface {
	Name() string
	// Detect reports whether root looks like this kind of project.
	Detect(root string) bool
	// Configure fills the watch, build and run sections of cfg.
	Configure(root string, cfg *application.Config) error
}

// Detector auto-detects the project kind in a directory.
type Detector struct {
	projects []Project
}

// Option configures the detector.
type Option func(*Detector)

// WithProject adds a custom project kind, tried after the built-in ones.
func WithProject(p Project) Option {
	return func(d *Detector) {
		d.projects = append(d.projects, p)
	}
}

// New creates a detector for Go, Rust and Node.js projects.
func New(opts ...Option) *Detector {
	d := &Detector{
		projects: []Project{
			GoProject{},
			RustProject{},
			NodeProject{},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the default configuration adjusted for the project at root.
func (d *Detector) Detect(root string) (application.Config, error) {
	info, err := os.Stat(root)
	if err != nil {
		return application.Config{}, fmt.Errorf("detect project: %w", err)
	}
	if !info.IsDir() {
		return application.Config{}, fmt.Errorf("detect project: %s is not a directory", root)
	}

	project, err := d.DetectProject(root)
	if err != nil {
		return application.Config{}, err
	}
	cfg := application.DefaultConfig()
	cfg.Watch.Root = root
	if err := project.Configure(root, &cfg); err != nil {
		return application.Config{}, fmt.Errorf("configure %s project: %w", project.Name(), err)
	}
	return cfg, nil
}

// DetectProject finds the first project kind matching root.
func (d *Detector) DetectProject(root string) (Project, error) {
	for _, p := range d.projects {
		if p.Detect(root) {
			return p, nil
		}
	}
	names := make([]string, 0, len(d.projects))
	for _, p := range d.projects {
		names = append(names, p.Name())
	}
	return nil, fmt.Errorf("no supported project found in %s (tried %s)", root, strings.Join(names, ", "))
}

func hasAny(root string, markers ...string) bool {
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
			return true
		}
	}
	return false
}
