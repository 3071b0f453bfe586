package application

import (
	"context"
	"fmt"
)

// History returns the recorded builds, newest last, with summary statistics.
func (s *Service) History(_ context.Context, opts HistoryOptions) (HistoryResult, error) {
	cfg, err := loadOrDetectConfig(s.ConfigLoader, s.Autodetector, opts.ConfigPath)
	if err != nil {
		return HistoryResult{}, err
	}

	store := selectHistoryStore(nil, s.OpenHistory, cfg.History)
	if store == nil {
		return HistoryResult{}, fmt.Errorf("history is not configured")
	}

	h, err := store.Load()
	if err != nil {
		return HistoryResult{}, fmt.Errorf("load history: %w", err)
	}
	return HistoryResult{Entries: h.Tail(opts.Limit), Stats: h.Stats()}, nil
}
