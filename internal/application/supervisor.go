package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// SupervisorConfig holds everything StartSupervisor needs.
type SupervisorConfig struct {
	Target   domain.WatchTarget
	Debounce time.Duration
	Mode     domain.BuildMode
	Notifier NotifierStarter
	Builder  Builder
	Launcher Launcher
	Logger   *slog.Logger
	OnResult ResultCallback
	// InitialBuild triggers one rebuild right after startup.
	InitialBuild bool
}

// Supervisor runs the watch → debounce → rebuild loop.
type Supervisor struct {
	notifier    ChangeNotifier
	coordinator *Coordinator
	registry    *ProcessRegistry
	cancel      context.CancelFunc
	done        chan struct{}
	logger      *slog.Logger

	stopOnce sync.Once
	mu       sync.Mutex
	err      error
}

// StartSupervisor begins watching and the tick → build → run loop. Only a
// failure to start watching is returned; it is a *domain.WatchStartError.
func StartSupervisor(ctx context.Context, cfg SupervisorConfig) (*Supervisor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier, err := cfg.Notifier.Start(cfg.Target)
	if err != nil {
		var startErr *domain.WatchStartError
		if !errors.As(err, &startErr) {
			err = &domain.WatchStartError{Path: cfg.Target.Root(), Err: err}
		}
		return nil, err
	}

	registry := &ProcessRegistry{}
	coordinator := NewCoordinator(CoordinatorConfig{
		Builder:  cfg.Builder,
		Launcher: cfg.Launcher,
		Registry: registry,
		Mode:     cfg.Mode,
		Logger:   logger,
		OnResult: cfg.OnResult,
	})

	runCtx, cancel := context.WithCancel(ctx)
	s := &Supervisor{
		notifier:    notifier,
		coordinator: coordinator,
		registry:    registry,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      logger,
	}

	changes := notifier.Changes()
	if cfg.InitialBuild {
		changes = withInitialChange(runCtx, changes)
	}
	ticks := Debounce(runCtx, changes, cfg.Debounce)

	logger.Info("watching", "root", cfg.Target.Root(), "debounce", cfg.Debounce, "mode", coordinator.mode)

	go func() {
		defer close(s.done)
		_ = coordinator.Run(runCtx, ticks)
		if err := notifier.Err(); err != nil {
			logger.Error("watch stream terminated", "error", err)
			s.setErr(err)
		}
	}()

	return s, nil
}

// Stop stops watching, cancels any in-flight build and kills the managed
// process. It returns once every resource has been released or ctx is done.
// Later calls wait the same way and return domain.ErrSupervisorStopped.
func (s *Supervisor) Stop(ctx context.Context) error {
	stopErr := domain.ErrSupervisorStopped
	s.stopOnce.Do(func() {
		stopErr = s.notifier.Stop()
		s.cancel()
	})
	select {
	case <-s.done:
		return stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the supervisor loop has exited.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Err returns the terminal watch error, if the loop ended because the
// watcher failed.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the coordinator's state.
func (s *Supervisor) State() domain.State { return s.coordinator.State() }

// Running reports whether a managed process is currently stored.
func (s *Supervisor) Running() bool { return s.registry.Occupied() }

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// withInitialChange prepends one synthetic change event to changes.
func withInitialChange(ctx context.Context, changes <-chan domain.ChangeEvent) <-chan domain.ChangeEvent {
	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		select {
		case out <- domain.ChangeEvent{}:
		case <-ctx.Done():
			return
		}
		for {
			select {
			case ev, ok := <-changes:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
