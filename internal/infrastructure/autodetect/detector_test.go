package autodetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/devwatch/internal/application"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetectGoRootPackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/acme/api\n\ngo 1.25\n")
	writeFile(t, filepath.Join(root, "main.go"), "// Command api.\npackage main\n\nfunc main() {}\n")

	cfg, err := New().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "build", "-o", "bin/api"}, cfg.Build.Command)
	assert.Equal(t, []string{"-trimpath", "-ldflags=-s -w"}, cfg.Build.ReleaseArgs)
	assert.Equal(t, []string{"./bin/api"}, cfg.Run.Command)
	assert.Contains(t, cfg.Watch.Include, "**/*.go")
	assert.Equal(t, root, cfg.Watch.Root)
	assert.NoError(t, cfg.Validate())
}

func TestDetectGoCmdLayout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/acme/tools\n")
	writeFile(t, filepath.Join(root, "internal", "lib", "lib.go"), "package lib\n")
	writeFile(t, filepath.Join(root, "cmd", "worker", "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "cmd", "server", "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "cmd", "shared", "util.go"), "package shared\n")

	cfg, err := New().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "build", "-o", "bin/server", "./cmd/server"}, cfg.Build.Command)
	assert.Empty(t, cfg.Build.ReleaseArgs)
	assert.Equal(t, []string{"./bin/server"}, cfg.Run.Command)
}

func TestDetectGoWithoutMain(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module lib\n")
	writeFile(t, filepath.Join(root, "lib.go"), "package lib\n")
	writeFile(t, filepath.Join(root, "lib_test.go"), "package main\n")

	cfg, err := New().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "build", "-o", "bin/lib", "."}, cfg.Build.Command)
}

func TestDetectRust(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), `[workspace]
name = "ignored"

[package]
name = "backend"
version = "0.1.0"

[dependencies]
name = "also-ignored"
`)

	cfg, err := New().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"cargo", "build", "--bin", "backend"}, cfg.Build.Command)
	assert.Equal(t, []string{"./target/debug/backend"}, cfg.Run.Command)
	assert.Contains(t, cfg.Watch.Ignore, "target/**")
}

func TestCargoPackageNameFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[workspace]\nmembers = [\"a\"]\n")

	cfg, err := New().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, "./target/debug/"+filepath.Base(root), cfg.Run.Command[0])
}

func TestDetectNode(t *testing.T) {
	tests := []struct {
		name      string
		pkg       string
		wantBuild []string
		wantRun   []string
	}{
		{"scripts", `{"scripts":{"build":"tsc","start":"node dist/server.js"}}`, []string{"npm", "run", "build"}, []string{"npm", "start"}},
		{"main only", `{"main":"server.js"}`, []string{"node", "--check", "server.js"}, []string{"node", "server.js"}},
		{"empty", `{}`, []string{"node", "--check", "index.js"}, []string{"node", "index.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "package.json"), tt.pkg)

			cfg, err := New().Detect(root)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBuild, cfg.Build.Command)
			assert.Equal(t, tt.wantRun, cfg.Run.Command)
		})
	}
}

func TestDetectNodeInvalidPackageJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), "{not json")

	_, err := New().Detect(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure node project")
}

func TestDetectPrefersGoOverNode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module web\n")
	writeFile(t, filepath.Join(root, "package.json"), `{"scripts":{"build":"vite build"}}`)

	project, err := New().DetectProject(root)
	require.NoError(t, err)
	assert.Equal(t, "go", project.Name())
}

func TestDetectNoProject(t *testing.T) {
	_, err := New().Detect(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported project found")
	assert.Contains(t, err.Error(), "go, rust, node")
}

func TestDetectRootErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	writeFile(t, file, "x")

	_, err := New().Detect(filepath.Join(root, "missing"))
	assert.Error(t, err)
	_, err = New().Detect(file)
	assert.ErrorContains(t, err, "not a directory")
}

type makeProject struct{}

func (makeProject) Name() string            { return "make" }
func (makeProject) Detect(root string) bool { return hasAny(root, "Makefile") }
func (makeProject) Configure(_ string, cfg *application.Config) error {
	cfg.Build.Command = []string{"make"}
	cfg.Run.Command = []string{"make", "run"}
	return nil
}

func TestWithProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Makefile"), "all:\n")

	cfg, err := New(WithProject(makeProject{})).Detect(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"make"}, cfg.Build.Command)
}
