package autodetect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/devwatch/internal/application"
)

// NodeProject uses the package.json scripts.
type NodeProject struct{}

func (NodeProject) Name() string { return "node" }

func (NodeProject) Detect(root string) bool {
	return hasAny(root, "package.json")
}

func (NodeProject) Configure(root string, cfg *application.Config) error {
	// #nosec G304 -- path is constructed from trusted project directory
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return err
	}
	var pkg struct {
		Main    string            `json:"main"`
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return fmt.Errorf("parse package.json: %w", err)
	}
	entry := pkg.Main
	if entry == "" {
		entry = "index.js"
	}

	cfg.Watch.Include = nil
	cfg.Watch.Ignore = []string{"dist/**", "build/**", "coverage/**"}
	cfg.Build.ReleaseArgs = nil

	if _, ok := pkg.Scripts["build"]; ok {
		cfg.Build.Command = []string{"npm", "run", "build"}
	} else {
		cfg.Build.Command = []string{"node", "--check", entry}
	}
	if _, ok := pkg.Scripts["start"]; ok {
		cfg.Run.Command = []string{"npm", "start"}
	} else {
		cfg.Run.Command = []string{"node", entry}
	}
	return nil
}
