package application

import (
	"context"
	"log/slog"
)

// ReloadServer serves the browser reload endpoint and fans out reload messages.
type ReloadServer interface {
	ReloadBroadcaster
	// Resume records buildID as the live build without notifying browsers.
	Resume(buildID string)
	Serve(ctx context.Context, addr string) error
}

type Service struct {
	ConfigLoader ConfigLoader
	Autodetector Autodetector
	Notifier     NotifierStarter
	Toolchain    Toolchain
	Reload       ReloadServer
	// OpenHistory returns the store for a history configuration. Nil disables history.
	OpenHistory func(cfg HistoryConfig) HistoryStore
	// ReadStamp seeds the reload server with the last stamped build. Optional.
	ReadStamp StampReader
	Logger    *slog.Logger
}

// Detect proposes a configuration for the project at opts.Root.
func (s *Service) Detect(_ context.Context, opts DetectOptions) (Config, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	return s.Autodetector.Detect(root)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
