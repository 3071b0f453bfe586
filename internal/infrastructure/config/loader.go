package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
	"github.com/felixgeelhaar/devwatch/internal/pathutil"
)

// DefaultPath is the config file looked up when no -config flag is given.
const DefaultPath = ".devwatch.yaml"

const supportedVersion = 1

type Loader struct{}

type fileConfig struct {
	Version  int           `yaml:"version"`
	Mode     string        `yaml:"mode,omitempty"`
	Watch    *fileWatch    `yaml:"watch,omitempty"`
	Build    *fileBuild    `yaml:"build,omitempty"`
	Run      *fileRun      `yaml:"run,omitempty"`
	Reload   *fileReload   `yaml:"reload,omitempty"`
	Frontend *fileFrontend `yaml:"frontend,omitempty"`
	History  *fileHistory  `yaml:"history,omitempty"`
	Log      *fileLog      `yaml:"log,omitempty"`
}

type fileWatch struct {
	Root     string   `yaml:"root,omitempty"`
	Include  []string `yaml:"include,omitempty"`
	Ignore   []string `yaml:"ignore,omitempty"`
	Debounce string   `yaml:"debounce,omitempty"`
}

type fileBuild struct {
	Command     []string          `yaml:"command,omitempty"`
	ReleaseArgs []string          `yaml:"release_args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Dir         string            `yaml:"dir,omitempty"`
	// Stamp is a pointer so that an explicit empty string disables the stamp file.
	Stamp *string `yaml:"stamp,omitempty"`
}

type fileRun struct {
	Command     []string          `yaml:"command,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Dir         string            `yaml:"dir,omitempty"`
	KillTimeout string            `yaml:"kill_timeout,omitempty"`
}

type fileReload struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

type fileFrontend struct {
	Root     string            `yaml:"root,omitempty"`
	Include  []string          `yaml:"include,omitempty"`
	Ignore   []string          `yaml:"ignore,omitempty"`
	Debounce string            `yaml:"debounce,omitempty"`
	Command  []string          `yaml:"command,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Dir      string            `yaml:"dir,omitempty"`
}

type fileHistory struct {
	Path       *string `yaml:"path,omitempty"`
	MaxEntries int     `yaml:"max_entries,omitempty"`
}

type fileLog struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Output string `yaml:"output,omitempty"`
}

func (l Loader) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads path and overlays it on application.DefaultConfig. Unknown keys
// are rejected.
func (l Loader) Load(path string) (application.Config, error) {
	clean, err := pathutil.ValidatePath(path)
	if err != nil {
		return application.Config{}, err
	}
	// #nosec G304 -- Path is provided by the user on the command line
	raw, err := os.ReadFile(clean)
	if err != nil {
		return application.Config{}, err
	}
	return Parse(raw)
}

// Parse decodes YAML config data.
func Parse(raw []byte) (application.Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return application.Config{}, err
	}
	return fc.toConfig()
}

func (fc fileConfig) toConfig() (application.Config, error) {
	cfg := application.DefaultConfig()
	if fc.Version > supportedVersion {
		return application.Config{}, fmt.Errorf("unsupported config version %d (max %d)", fc.Version, supportedVersion)
	}
	if fc.Mode != "" {
		mode, err := domain.ParseBuildMode(fc.Mode)
		if err != nil {
			return application.Config{}, err
		}
		cfg.Mode = mode
	}

	if w := fc.Watch; w != nil {
		if w.Root != "" {
			cfg.Watch.Root = w.Root
		}
		cfg.Watch.Include = w.Include
		if w.Ignore != nil {
			cfg.Watch.Ignore = w.Ignore
		}
		if w.Debounce != "" {
			d, err := parseDuration("watch.debounce", w.Debounce)
			if err != nil {
				return application.Config{}, err
			}
			cfg.Watch.Debounce = d
		}
	}

	if b := fc.Build; b != nil {
		if len(b.Command) > 0 {
			cfg.Build.Command = b.Command
		}
		cfg.Build.ReleaseArgs = b.ReleaseArgs
		cfg.Build.Env = b.Env
		cfg.Build.Dir = b.Dir
		if b.Stamp != nil {
			cfg.Build.Stamp = *b.Stamp
		}
	}

	if r := fc.Run; r != nil {
		if len(r.Command) > 0 {
			cfg.Run.Command = r.Command
		}
		cfg.Run.Env = r.Env
		cfg.Run.Dir = r.Dir
		if r.KillTimeout != "" {
			d, err := parseDuration("run.kill_timeout", r.KillTimeout)
			if err != nil {
				return application.Config{}, err
			}
			cfg.Run.KillTimeout = d
		}
	}

	if r := fc.Reload; r != nil {
		if r.Enabled != nil {
			cfg.Reload.Enabled = *r.Enabled
		}
		if r.Addr != "" {
			cfg.Reload.Addr = r.Addr
		}
	}

	if f := fc.Frontend; f != nil {
		cfg.Frontend = application.FrontendConfig{
			Watch: application.WatchConfig{
				Root:     f.Root,
				Include:  f.Include,
				Ignore:   f.Ignore,
				Debounce: cfg.Watch.Debounce,
			},
			Command: f.Command,
			Env:     f.Env,
			Dir:     f.Dir,
		}
		if f.Debounce != "" {
			d, err := parseDuration("frontend.debounce", f.Debounce)
			if err != nil {
				return application.Config{}, err
			}
			cfg.Frontend.Watch.Debounce = d
		}
	}

	if h := fc.History; h != nil {
		if h.Path != nil {
			cfg.History.Path = *h.Path
		}
		if h.MaxEntries > 0 {
			cfg.History.MaxEntries = h.MaxEntries
		}
	}

	if lg := fc.Log; lg != nil {
		if lg.Level != "" {
			cfg.Log.Level = lg.Level
		}
		if lg.Format != "" {
			cfg.Log.Format = lg.Format
		}
		if lg.Output != "" {
			cfg.Log.Output = lg.Output
		}
	}
	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Write encodes cfg as YAML with every section present.
func Write(w io.Writer, cfg application.Config) error {
	stamp := cfg.Build.Stamp
	historyPath := cfg.History.Path
	enabled := cfg.Reload.Enabled
	out := fileConfig{
		Version: cfg.Version,
		Mode:    string(cfg.Mode),
		Watch: &fileWatch{
			Root:     cfg.Watch.Root,
			Include:  cfg.Watch.Include,
			Ignore:   cfg.Watch.Ignore,
			Debounce: cfg.Watch.Debounce.String(),
		},
		Build: &fileBuild{
			Command:     cfg.Build.Command,
			ReleaseArgs: cfg.Build.ReleaseArgs,
			Env:         cfg.Build.Env,
			Dir:         cfg.Build.Dir,
			Stamp:       &stamp,
		},
		Run: &fileRun{
			Command:     cfg.Run.Command,
			Env:         cfg.Run.Env,
			Dir:         cfg.Run.Dir,
			KillTimeout: cfg.Run.KillTimeout.String(),
		},
		Reload: &fileReload{
			Enabled: &enabled,
			Addr:    cfg.Reload.Addr,
		},
		History: &fileHistory{
			Path:       &historyPath,
			MaxEntries: cfg.History.MaxEntries,
		},
		Log: &fileLog{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: cfg.Log.Output,
		},
	}
	if f := cfg.Frontend; f.Enabled() {
		out.Frontend = &fileFrontend{
			Root:     f.Watch.Root,
			Include:  f.Watch.Include,
			Ignore:   f.Watch.Ignore,
			Debounce: f.Watch.Debounce.String(),
			Command:  f.Command,
			Env:      f.Env,
			Dir:      f.Dir,
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
