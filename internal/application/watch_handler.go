package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// stopTimeout bounds how long Watch waits for the supervisor to release
// its resources after cancellation.
const stopTimeout = 30 * time.Second

// Watch rebuilds and restarts the project whenever its sources change. It
// blocks until ctx is cancelled or the watcher fails.
func (s *Service) Watch(ctx context.Context, opts WatchOptions, callback ResultCallback) error {
	cfg, err := loadOrDetectConfig(s.ConfigLoader, s.Autodetector, opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := applyWatchOverrides(&cfg, opts); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	target, err := cfg.Target()
	if err != nil {
		return err
	}
	var frontendTarget domain.WatchTarget
	if cfg.Frontend.Enabled() {
		if frontendTarget, err = cfg.FrontendTarget(); err != nil {
			return err
		}
	}

	log := s.logger()
	store := selectHistoryStore(opts.HistoryStore, s.OpenHistory, cfg.History)

	var reload ReloadBroadcaster
	if cfg.Reload.Enabled && s.Reload != nil {
		reload = s.Reload
		s.resumeBuild(cfg)
		go func() {
			if err := s.Reload.Serve(ctx, cfg.Reload.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("reload server stopped", "addr", cfg.Reload.Addr, "error", err)
			}
		}()
	}

	onResult := func(result domain.BuildResult) {
		if store != nil {
			if err := store.Append(result.Record()); err != nil {
				log.Warn("record build", "build_id", result.ID, "error", err)
			}
		}
		if reload != nil && result.Status == domain.BuildSucceeded {
			reload.Broadcast(result.ID)
		}
		if callback != nil {
			callback(result)
		}
	}

	sup, err := StartSupervisor(ctx, SupervisorConfig{
		Target:       target,
		Debounce:     cfg.Watch.Debounce,
		Mode:         cfg.Mode,
		Notifier:     s.Notifier,
		Builder:      s.Toolchain.Builder(cfg),
		Launcher:     s.Toolchain.Launcher(cfg),
		Logger:       log,
		OnResult:     onResult,
		InitialBuild: !opts.NoInitial,
	})
	if err != nil {
		return err
	}
	stoppers := []stopper{sup}

	var frontendDone <-chan struct{}
	var frontend *AssetPipeline
	if cfg.Frontend.Enabled() {
		frontend, err = StartAssetPipeline(ctx, AssetPipelineConfig{
			Target:       frontendTarget,
			Debounce:     cfg.Frontend.Watch.Debounce,
			Mode:         cfg.Mode,
			Notifier:     s.Notifier,
			Builder:      s.Toolchain.FrontendBuilder(cfg),
			Reload:       reload,
			Logger:       log,
			InitialBuild: !opts.NoInitial,
		})
		if err != nil {
			stopAll(ctx, log, stoppers)
			return err
		}
		stoppers = append(stoppers, frontend)
		frontendDone = frontend.Done()
	}

	select {
	case <-ctx.Done():
		stopAll(ctx, log, stoppers)
		return ctx.Err()
	case <-sup.Done():
		stopAll(ctx, log, stoppers[1:])
		return sup.Err()
	case <-frontendDone:
		stopAll(ctx, log, stoppers[:1])
		return frontend.Err()
	}
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopAll stops each loop within stopTimeout, even when ctx is already done.
func stopAll(ctx context.Context, log *slog.Logger, loops []stopper) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	for _, l := range loops {
		if err := l.Stop(stopCtx); err != nil {
			log.Warn("stop watch loop", "error", err)
		}
	}
}

// resumeBuild tells the reload server about the build a previous devwatch
// run left in the stamp file, so /build_id is answered before the first
// rebuild.
func (s *Service) resumeBuild(cfg Config) {
	path := cfg.StampPath()
	if s.ReadStamp == nil || path == "" {
		return
	}
	id, err := s.ReadStamp(path)
	if err != nil {
		s.logger().Debug("read build stamp", "path", path, "error", err)
		return
	}
	if id != "" {
		s.Reload.Resume(id)
	}
}

func applyWatchOverrides(cfg *Config, opts WatchOptions) error {
	if opts.Mode != "" {
		mode, err := domain.ParseBuildMode(opts.Mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if opts.Debounce != nil {
		cfg.Watch.Debounce = *opts.Debounce
	}
	if opts.NoReload {
		cfg.Reload.Enabled = false
	}
	return nil
}
