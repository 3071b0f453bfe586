package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/autodetect"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/command"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/config"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/history"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/livereload"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/logger"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/report"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/watcher"
	"github.com/felixgeelhaar/devwatch/internal/infrastructure/wizard"
)

type Service interface {
	Watch(ctx context.Context, opts application.WatchOptions, callback application.ResultCallback) error
	Build(ctx context.Context, opts application.BuildOptions) (domain.BuildResult, error)
	Detect(ctx context.Context, opts application.DetectOptions) (application.Config, error)
	History(ctx context.Context, opts application.HistoryOptions) (application.HistoryResult, error)
}

// Exit codes.
const (
	exitOK      = 0
	exitBuild   = 1
	exitUsage   = 2
	exitRuntime = 3
	exitWizard  = 5
)

const defaultHistory = 20

var (
	initWizard   = wizard.Run
	setupLogging = configureLogging
	reporter     = report.Writer{}
)

func Run(args []string, stdout, stderr io.Writer, svc Service) int {
	if len(args) < 2 {
		usage(stderr)
		return exitUsage
	}

	ctx := context.Background()

	switch args[1] {
	case "watch":
		fs := flag.NewFlagSet("watch", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		mode := fs.String("mode", "", "Build mode: dev|release (default from config)")
		debounce := fs.Duration("debounce", 0, "Quiet period before a rebuild (default from config)")
		noInitial := fs.Bool("no-initial", false, "Wait for the first change instead of building at startup")
		noReload := fs.Bool("no-reload", false, "Disable the browser reload server")
		verbose := fs.Bool("v", false, "Enable debug logging")
		output := outputFlags(fs)
		_ = fs.Parse(args[2:])

		opts := application.WatchOptions{
			ConfigPath: *configPath,
			Mode:       *mode,
			NoInitial:  *noInitial,
			NoReload:   *noReload,
		}
		if flagSet(fs, "debounce") {
			opts.Debounce = debounce
		}
		closeLog := setupLogging(*configPath, *verbose, stderr)
		defer closeLog()
		return runWatch(ctx, stdout, stderr, svc, opts, *output)
	case "build":
		fs := flag.NewFlagSet("build", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		mode := fs.String("mode", "", "Build mode: dev|release (default from config)")
		verbose := fs.Bool("v", false, "Enable debug logging")
		output := outputFlags(fs)
		_ = fs.Parse(args[2:])

		closeLog := setupLogging(*configPath, *verbose, stderr)
		defer closeLog()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := svc.Build(ctx, application.BuildOptions{ConfigPath: *configPath, Mode: *mode})
		if res.ID != "" {
			if werr := reporter.WriteResult(stdout, res, *output); werr != nil {
				return exitCode(werr, exitRuntime, stderr)
			}
		}
		return exitCode(err, buildExitCode(err), stderr)
	case "detect":
		fs := flag.NewFlagSet("detect", flag.ExitOnError)
		writeConfig := fs.Bool("write-config", false, "Write detected config to "+config.DefaultPath)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		root := fs.String("root", ".", "Project root to inspect")
		force := fs.Bool("force", false, "Overwrite config if it exists")
		_ = fs.Parse(args[2:])
		cfg, err := svc.Detect(ctx, application.DetectOptions{Root: *root})
		if err != nil {
			return exitCode(err, exitRuntime, stderr)
		}
		target := "-"
		if *writeConfig {
			target = *configPath
		}
		if err := writeConfigFile(target, cfg, stdout, *force); err != nil {
			return exitCode(err, exitUsage, stderr)
		}
		if *writeConfig {
			fmt.Fprintf(stdout, "Config written to %s\n", *configPath)
		}
		return exitOK
	case "init":
		fs := flag.NewFlagSet("init", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		force := fs.Bool("force", false, "Overwrite existing config file")
		noInteractive := fs.Bool("no-interactive", false, "Skip the interactive init wizard")
		_ = fs.Parse(args[2:])
		cfg, err := svc.Detect(ctx, application.DetectOptions{})
		if err != nil {
			return exitCode(err, exitRuntime, stderr)
		}
		if !*noInteractive {
			var confirmed bool
			cfg, confirmed, err = initWizard(cfg, stdout, os.Stdin)
			if err != nil {
				return exitCode(err, exitWizard, stderr)
			}
			if !confirmed {
				fmt.Fprintln(stdout, "Init cancelled; no configuration written.")
				return exitOK
			}
		}
		if err := writeConfigFile(*configPath, cfg, stdout, *force); err != nil {
			return exitCode(err, exitUsage, stderr)
		}
		fmt.Fprintf(stdout, "Config written to %s\n", *configPath)
		return exitOK
	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		limit := fs.Int("n", defaultHistory, "Number of builds to show (0 for all)")
		output := outputFlags(fs)
		_ = fs.Parse(args[2:])
		res, err := svc.History(ctx, application.HistoryOptions{ConfigPath: *configPath, Limit: *limit})
		if err != nil {
			return exitCode(err, exitRuntime, stderr)
		}
		return exitCode(reporter.WriteHistory(stdout, res, *output), exitRuntime, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "devwatch %s (commit %s, built %s)\n", Version, Commit, Date)
		return exitOK
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		usage(stderr)
		return exitUsage
	}
}

// BuildService wires the production adapters.
func BuildService(out *os.File) *application.Service {
	return &application.Service{
		ConfigLoader: config.Loader{},
		Autodetector: autodetect.New(),
		Notifier:     watcher.Starter{},
		Toolchain:    command.Toolchain{Stdout: out, Stderr: os.Stderr},
		Reload:       livereload.NewHub(nil),
		OpenHistory:  history.Open,
		ReadStamp:    command.ReadStamp,
	}
}

func runWatch(ctx context.Context, stdout, stderr io.Writer, svc Service, opts application.WatchOptions, format application.OutputFormat) int {
	// Handle Ctrl+C gracefully
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\nStopping watch mode...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(stderr, "Watching for file changes... (Ctrl+C to stop)")

	callback := func(res domain.BuildResult) {
		if err := reporter.WriteResult(stdout, res, format); err != nil {
			slog.Warn("print build result", "build_id", res.ID, "error", err)
		}
	}

	err := svc.Watch(ctx, opts, callback)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return exitOK // Normal exit on Ctrl+C
	case errors.Is(err, domain.ErrInvalidMode):
		return exitCode(err, exitUsage, stderr)
	default:
		fmt.Fprintf(stderr, "watch error: %v\n", err)
		return exitRuntime
	}
}

func buildExitCode(err error) int {
	var buildErr *domain.BuildError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &buildErr), errors.Is(err, context.Canceled):
		return exitBuild
	case errors.Is(err, domain.ErrInvalidMode):
		return exitUsage
	default:
		return exitRuntime
	}
}

// configureLogging installs the default logger from the log section of the
// config at path. Missing or broken config falls back to defaults; the build
// itself reports config errors.
func configureLogging(path string, verbose bool, stderr io.Writer) func() {
	cfg := application.DefaultConfig().Log
	loader := config.Loader{}
	if ok, _ := loader.Exists(path); ok {
		if loaded, err := loader.Load(path); err == nil {
			cfg = loaded.Log
		}
	}
	if verbose {
		cfg.Level = "debug"
	}
	log, closer, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v; using stderr\n", err)
		cfg.Output = "stderr"
		log = logger.NewWithWriter(cfg, stderr)
		closer = func() error { return nil }
	}
	slog.SetDefault(log.With("app", "devwatch"))
	return func() { _ = closer() }
}

func outputFlags(fs *flag.FlagSet) *application.OutputFormat {
	output := application.OutputText
	fs.Var((*outputValue)(&output), "output", "Output format: text|json")
	fs.Var((*outputValue)(&output), "o", "Output format: text|json")
	return &output
}

type outputValue application.OutputFormat

func (o *outputValue) String() string { return string(*o) }

func (o *outputValue) Set(value string) error {
	switch value {
	case string(application.OutputText), string(application.OutputJSON):
		*o = outputValue(value)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", value)
	}
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func writeConfigFile(path string, cfg application.Config, stdout io.Writer, force bool) error {
	if path == "-" {
		return config.Write(stdout, cfg)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists (use -force to overwrite)", path)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return config.Write(file, cfg)
}

func exitCode(err error, code int, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, err)
	return code
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `devwatch <command>

Commands:
  watch    Rebuild and restart the server on every change
  build    Build once without starting the server
  detect   Autodetect build and run commands (use -write-config to save)
  init     Run autodetect plus the interactive wizard
  history  Show recorded builds
  version  Print version information`)
}
