package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/domain"
	"github.com/felixgeelhaar/devwatch/internal/pathutil"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

var ErrConfigNotFound = errors.New("config not found")

// Config represents validated, application-ready configuration.
type Config struct {
	Version  int
	Mode     domain.BuildMode
	Watch    WatchConfig
	Build    BuildConfig
	Run      RunConfig
	Reload   ReloadConfig
	Frontend FrontendConfig
	History  HistoryConfig
	Log      LogConfig
}

// WatchConfig selects the files that trigger a rebuild.
type WatchConfig struct {
	Root     string
	Include  []string
	Ignore   []string
	Debounce time.Duration
}

// BuildConfig describes the build command.
type BuildConfig struct {
	Command     []string
	ReleaseArgs []string
	Env         map[string]string
	Dir         string
	Stamp       string // build ID file written after a successful build
}

// RunConfig describes the server command.
type RunConfig struct {
	Command     []string
	Env         map[string]string
	Dir         string
	KillTimeout time.Duration
}

// FrontendConfig describes an optional client asset pipeline. Changes under
// its watch target rebuild the assets and reload browsers without restarting
// the server. An empty Command disables it.
type FrontendConfig struct {
	Watch   WatchConfig
	Command []string
	Env     map[string]string
	Dir     string
}

// Enabled reports whether a frontend build command is configured.
func (f FrontendConfig) Enabled() bool { return len(f.Command) > 0 }

type ReloadConfig struct {
	Enabled bool
	Addr    string
}

type HistoryConfig struct {
	Path       string
	MaxEntries int
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Mode:    domain.ModeDev,
		Watch: WatchConfig{
			Root:     ".",
			Ignore:   []string{"bin/**"},
			Debounce: domain.DefaultDebounce,
		},
		Build: BuildConfig{
			Command: []string{"go", "build", "-o", "bin/server", "."},
			Stamp:   ".devwatch/build_id",
		},
		Run: RunConfig{
			Command:     []string{"./bin/server"},
			KillTimeout: 5 * time.Second,
		},
		Reload: ReloadConfig{
			Enabled: false,
			Addr:    "127.0.0.1:35729",
		},
		History: HistoryConfig{
			Path:       ".devwatch/history.json",
			MaxEntries: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if _, err := domain.ParseBuildMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Watch.Root == "" {
		return fmt.Errorf("watch.root must not be empty")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative (got %s)", c.Watch.Debounce)
	}
	if len(c.Build.Command) == 0 {
		return fmt.Errorf("build.command must not be empty")
	}
	if len(c.Run.Command) == 0 {
		return fmt.Errorf("run.command must not be empty")
	}
	if c.Run.KillTimeout < 0 {
		return fmt.Errorf("run.kill_timeout must not be negative (got %s)", c.Run.KillTimeout)
	}
	if c.Reload.Enabled && c.Reload.Addr == "" {
		return fmt.Errorf("reload.addr is required when reload is enabled")
	}
	if c.Frontend.Watch.Debounce < 0 {
		return fmt.Errorf("frontend.debounce must not be negative (got %s)", c.Frontend.Watch.Debounce)
	}
	return nil
}

// Target builds the immutable watch target described by the config. Files
// devwatch writes itself inside the root are ignored so that a build never
// triggers the next one.
func (c Config) Target() (domain.WatchTarget, error) {
	return c.target(c.Watch.Root, c.Watch.Include, c.Watch.Ignore)
}

// FrontendRoot is the frontend watch root, defaulting to the main one.
func (c Config) FrontendRoot() string {
	if c.Frontend.Watch.Root != "" {
		return c.Frontend.Watch.Root
	}
	return c.Watch.Root
}

// FrontendTarget is the watch target of the asset pipeline.
func (c Config) FrontendTarget() (domain.WatchTarget, error) {
	return c.target(c.FrontendRoot(), c.Frontend.Watch.Include, c.Frontend.Watch.Ignore)
}

// StampPath is the build stamp file resolved against the watch root, or ""
// when stamping is disabled.
func (c Config) StampPath() string {
	if c.Build.Stamp == "" {
		return ""
	}
	return pathutil.Resolve(c.Watch.Root, c.Build.Stamp)
}

func (c Config) target(root string, include, ignore []string) (domain.WatchTarget, error) {
	patterns := append([]string(nil), ignore...)
	patterns = append(patterns, c.OutputIgnores(root)...)
	return domain.NewWatchTarget(root, include, patterns)
}

// OutputIgnores returns ignore patterns, relative to root, for the build
// stamp, the history file and a log file when they lie inside root. Each
// file also covers its siblings sharing the name as a prefix (temp files,
// locks).
func (c Config) OutputIgnores(root string) []string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil
	}
	outputs := []string{c.StampPath(), c.History.Path}
	switch c.Log.Output {
	case "", "stdout", "stderr":
	default:
		outputs = append(outputs, c.Log.Output)
	}

	var patterns []string
	for _, out := range outputs {
		if out == "" {
			continue
		}
		abs, err := filepath.Abs(out)
		if err != nil {
			continue
		}
		rel, ok := pathutil.Rel(absRoot, abs)
		if !ok || rel == "." {
			continue
		}
		literal := escapeGlob(rel)
		patterns = append(patterns, literal, literal+".*")
	}
	return patterns
}

// escapeGlob quotes the doublestar metacharacters in a literal path.
func escapeGlob(path string) string {
	var sb strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type ConfigLoader interface {
	Load(path string) (Config, error)
	Exists(path string) (bool, error)
}

type Autodetector interface {
	Detect(root string) (Config, error)
}

// Builder compiles the project. It must stop its subprocess when ctx is cancelled
// and return ctx.Err() in that case; other failures are *domain.BuildError.
type Builder interface {
	Build(ctx context.Context, req domain.BuildRequest) error
}

// Launcher starts the compiled server. The returned process outlives ctx.
// Failures are *domain.RunError.
type Launcher interface {
	Launch(ctx context.Context, req domain.BuildRequest) (domain.ManagedProcess, error)
}

// Toolchain creates the build and run invokers for a configuration.
type Toolchain interface {
	Builder(cfg Config) Builder
	Launcher(cfg Config) Launcher
	// FrontendBuilder builds the client assets described by cfg.Frontend.
	FrontendBuilder(cfg Config) Builder
}

// ChangeNotifier delivers payload-free change signals for a watch target.
type ChangeNotifier interface {
	// Changes is closed once the notifier stops or fails.
	Changes() <-chan domain.ChangeEvent
	// Err returns the terminal error after Changes is closed, nil on a clean stop.
	Err() error
	// Stop releases the watch resources. It is idempotent.
	Stop() error
}

// NotifierStarter begins observation of a watch target.
type NotifierStarter interface {
	Start(target domain.WatchTarget) (ChangeNotifier, error)
}

// HistoryStore persists build records.
type HistoryStore interface {
	Load() (domain.History, error)
	Append(entry domain.BuildRecord) error
}

// ReloadBroadcaster tells connected browsers that a new build is running.
type ReloadBroadcaster interface {
	Broadcast(buildID string)
}

// StampReader returns the build ID stored in a stamp file, "" if none.
type StampReader func(path string) (string, error)

// ResultCallback receives every build result. It may be called concurrently
// with the supervisor loop and must not block for long.
type ResultCallback func(result domain.BuildResult)

// WatchOptions configures watch mode behavior.
type WatchOptions struct {
	ConfigPath   string
	Mode         string
	Debounce     *time.Duration
	NoInitial    bool
	NoReload     bool
	HistoryStore HistoryStore
}

// BuildOptions configures a one-shot build.
type BuildOptions struct {
	ConfigPath   string
	Mode         string
	HistoryStore HistoryStore
}

type DetectOptions struct {
	Root string
}

type HistoryOptions struct {
	ConfigPath string
	Limit      int
}

// HistoryResult is the outcome of a history query.
type HistoryResult struct {
	Entries []domain.BuildRecord
	Stats   domain.HistoryStats
}
