package application

import (
	"fmt"
)

// loadOrDetectConfig loads config from path or auto-detects if not found.
func loadOrDetectConfig(loader ConfigLoader, detector Autodetector, configPath string) (Config, error) {
	if configPath != "" && loader != nil {
		exists, err := loader.Exists(configPath)
		if err != nil {
			return Config{}, err
		}
		if exists {
			cfg, err := loader.Load(configPath)
			if err != nil {
				return Config{}, fmt.Errorf("load config %s: %w", configPath, err)
			}
			return cfg, nil
		}
	}

	if detector == nil {
		return DefaultConfig(), nil
	}
	cfg, err := detector.Detect(".")
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s (autodetect: %v)", ErrConfigNotFound, configPath, err)
	}
	return cfg, nil
}

// selectHistoryStore returns the explicit store if set, else the one opened
// from the config. A nil result means history is disabled.
func selectHistoryStore(explicit HistoryStore, open func(HistoryConfig) HistoryStore, cfg HistoryConfig) HistoryStore {
	if explicit != nil {
		return explicit
	}
	if open == nil || cfg.Path == "" {
		return nil
	}
	return open(cfg)
}
