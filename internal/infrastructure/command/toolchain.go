// Package command runs the watched project's build and server commands as
// subprocesses.
package command

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
	"github.com/felixgeelhaar/devwatch/internal/pathutil"
)

// waitDelay bounds how long Wait keeps copying output after a process has
// been killed, in case a grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Toolchain builds Builders and Launchers from a Config.
type Toolchain struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Builder implements application.Toolchain.
func (t Toolchain) Builder(cfg application.Config) application.Builder {
	return &Builder{
		Command:     cfg.Build.Command,
		ReleaseArgs: cfg.Build.ReleaseArgs,
		Env:         cfg.Build.Env,
		Dir:         workDir(cfg.Build.Dir, cfg.Watch.Root),
		Stamp:       cfg.StampPath(),
		Stdout:      t.Stdout,
		Stderr:      t.Stderr,
		Logger:      t.Logger,
	}
}

// FrontendBuilder implements application.Toolchain. Asset builds take no
// release args and write no stamp.
func (t Toolchain) FrontendBuilder(cfg application.Config) application.Builder {
	return &Builder{
		Command: cfg.Frontend.Command,
		Env:     cfg.Frontend.Env,
		Dir:     workDir(cfg.Frontend.Dir, cfg.FrontendRoot()),
		Stdout:  t.Stdout,
		Stderr:  t.Stderr,
		Logger:  t.Logger,
	}
}

// Launcher implements application.Toolchain.
func (t Toolchain) Launcher(cfg application.Config) application.Launcher {
	return &Launcher{
		Command:     cfg.Run.Command,
		Env:         cfg.Run.Env,
		Dir:         workDir(cfg.Run.Dir, cfg.Watch.Root),
		KillTimeout: cfg.Run.KillTimeout,
		Stdout:      t.Stdout,
		Stderr:      t.Stderr,
		Logger:      t.Logger,
	}
}

// workDir resolves dir against the watch root. Relative dirs are relative to
// the root; an empty dir means the root itself.
func workDir(dir, root string) string {
	return pathutil.Resolve(root, dir)
}

// environ returns the parent environment plus the build metadata and the
// configured variables, in a stable order.
func environ(extra map[string]string, req domain.BuildRequest) []string {
	env := os.Environ()
	env = append(env,
		"DEVWATCH_MODE="+string(req.Mode),
		"DEVWATCH_BUILD_ID="+req.ID,
	)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
