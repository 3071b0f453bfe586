package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// Build compiles the project once without starting the server. The result is
// recorded in the history like any watch-mode build.
func (s *Service) Build(ctx context.Context, opts BuildOptions) (domain.BuildResult, error) {
	cfg, err := loadOrDetectConfig(s.ConfigLoader, s.Autodetector, opts.ConfigPath)
	if err != nil {
		return domain.BuildResult{}, err
	}
	if opts.Mode != "" {
		mode, err := domain.ParseBuildMode(opts.Mode)
		if err != nil {
			return domain.BuildResult{}, err
		}
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return domain.BuildResult{}, fmt.Errorf("invalid config: %w", err)
	}

	req := domain.BuildRequest{ID: ulid.Make().String(), Seq: 1, Mode: cfg.Mode}
	result := domain.BuildResult{ID: req.ID, Seq: req.Seq, Mode: req.Mode, StartedAt: time.Now()}

	buildErr := s.Toolchain.Builder(cfg).Build(ctx, req)
	result.Duration = time.Since(result.StartedAt)
	switch {
	case buildErr == nil:
		result.Status = domain.BuildSucceeded
	case errors.Is(buildErr, context.Canceled), errors.Is(buildErr, context.DeadlineExceeded):
		result.Status = domain.BuildCancelled
	default:
		result.Status = domain.BuildFailed
	}
	result.Err = buildErr

	if store := selectHistoryStore(opts.HistoryStore, s.OpenHistory, cfg.History); store != nil {
		if err := store.Append(result.Record()); err != nil {
			s.logger().Warn("record build", "build_id", result.ID, "error", err)
		}
	}
	return result, buildErr
}
