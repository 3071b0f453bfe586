package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// DefaultMaxEntries is the default number of build records to keep.
const DefaultMaxEntries = 100

// FileStore provides JSON file-based storage for build history.
type FileStore struct {
	Path       string
	MaxEntries int
}

// Open returns the store described by cfg. It matches the signature of
// application.Service.OpenHistory.
func Open(cfg application.HistoryConfig) application.HistoryStore {
	return &FileStore{Path: cfg.Path, MaxEntries: cfg.MaxEntries}
}

// Note: fileLock and acquireLock/release are defined in platform-specific files:
// - lock_unix.go for Unix systems (Linux, macOS, BSD)
// - lock_windows.go for Windows

// Load reads the history from the JSON file.
// Returns an empty history if the file doesn't exist.
func (s *FileStore) Load() (domain.History, error) {
	// #nosec G304 -- Path is derived from trusted config
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.History{}, nil
		}
		return domain.History{}, err
	}

	var h domain.History
	if err := json.Unmarshal(data, &h); err != nil {
		return domain.History{}, fmt.Errorf("decode %s: %w", s.Path, err)
	}

	return h, nil
}

// Save writes the history to the JSON file. The previous file is replaced
// atomically so a concurrent reader never sees a truncated document.
func (s *FileStore) Save(h domain.History) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// Append adds a new record to the history and saves it.
// If MaxEntries is set, older records are removed to maintain the limit.
// Uses file locking to prevent race conditions with concurrent processes.
func (s *FileStore) Append(entry domain.BuildRecord) error {
	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer lock.release()

	h, err := s.Load()
	if err != nil {
		return err
	}

	h.Entries = append(h.Entries, entry)

	max := s.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if len(h.Entries) > max {
		h.Entries = h.Entries[len(h.Entries)-max:]
	}

	return s.Save(h)
}
