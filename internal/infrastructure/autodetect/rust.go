package autodetect

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/devwatch/internal/application"
)

// RustProject builds a Cargo package and runs its debug binary.
type RustProject struct{}

func (RustProject) Name() string { return "rust" }

func (RustProject) Detect(root string) bool {
	return hasAny(root, "Cargo.toml")
}

func (RustProject) Configure(root string, cfg *application.Config) error {
	name := cargoPackageName(filepath.Join(root, "Cargo.toml"))
	if name == "" {
		name = filepath.Base(root)
	}
	cfg.Watch.Include = []string{"**/*.rs", "Cargo.toml", "Cargo.lock"}
	cfg.Watch.Ignore = []string{"target/**"}
	cfg.Build.Command = []string{"cargo", "build", "--bin", name}
	cfg.Build.ReleaseArgs = nil
	cfg.Run.Command = []string{"./target/debug/" + name}
	return nil
}

// cargoPackageName reads the name key of the [package] table.
func cargoPackageName(manifest string) string {
	// #nosec G304 -- manifest path is built from the project root
	f, err := os.Open(manifest)
	if err != nil {
		return ""
	}
	defer f.Close()

	inPackage := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inPackage = line == "[package]"
			continue
		}
		if !inPackage {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "name" {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return ""
}
