package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
	"github.com/felixgeelhaar/devwatch/internal/pathutil"
)

// Starter opens a Notifier for each watch target.
type Starter struct {
	Logger *slog.Logger
}

// Start implements application.NotifierStarter.
func (s Starter) Start(target domain.WatchTarget) (application.ChangeNotifier, error) {
	n, err := Open(target, s.Logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Notifier monitors a directory tree and emits one ChangeEvent per relevant
// filesystem event.
type Notifier struct {
	fsw     *fsnotify.Watcher
	root    string
	include []string
	ignore  []string
	logger  *slog.Logger

	changes chan domain.ChangeEvent
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	closeErr error

	mu  sync.Mutex
	err error
}

// Open starts watching target. Every error it returns is a
// *domain.WatchStartError.
func Open(target domain.WatchTarget, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := target.Root()

	info, err := os.Stat(root)
	if err != nil {
		return nil, startError(root, err)
	}
	if !info.IsDir() {
		return nil, startError(root, fmt.Errorf("not a directory"))
	}
	if err := validatePatterns(target.Include(), "include"); err != nil {
		return nil, startError(root, err)
	}
	if err := validatePatterns(target.Ignore(), "ignore"); err != nil {
		return nil, startError(root, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, startError(root, err)
	}

	n := &Notifier{
		fsw:     fsw,
		root:    root,
		include: target.Include(),
		ignore:  target.Ignore(),
		logger:  logger.With("component", "watcher"),
		changes: make(chan domain.ChangeEvent),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := n.addTree(); err != nil {
		_ = fsw.Close()
		return nil, startError(root, err)
	}

	go n.loop()
	return n, nil
}

// Changes is closed when the notifier stops or fails.
func (n *Notifier) Changes() <-chan domain.ChangeEvent { return n.changes }

// Err returns the terminal watch error, or nil.
func (n *Notifier) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Stop releases the OS watch handles. No event is delivered after it returns.
func (n *Notifier) Stop() error {
	n.stopOnce.Do(func() {
		close(n.stop)
		n.closeErr = n.fsw.Close()
		<-n.done
	})
	return n.closeErr
}

func (n *Notifier) loop() {
	defer close(n.done)
	defer close(n.changes)

	for {
		select {
		case <-n.stop:
			return

		case ev, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			if !n.handle(ev) {
				continue
			}
			select {
			case n.changes <- domain.ChangeEvent{}:
			case <-n.stop:
				return
			}

		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			if isFatal(err) {
				n.logger.Error("watcher failed", "error", err)
				n.setErr(&domain.WatchRuntimeError{Fatal: true, Err: err})
				_ = n.fsw.Close()
				return
			}
			n.logger.Warn("watcher error", "error", err)
		}
	}
}

// handle reports whether ev should produce a ChangeEvent. Newly created
// directories are added to the watch list; creating one is a change only if
// it already holds included files.
func (n *Notifier) handle(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, ok := pathutil.Rel(n.root, ev.Name)
	if !ok || n.isIgnored(rel) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if isDir, populated := n.addNewDir(ev.Name, rel); isDir {
			return populated
		}
	}
	return n.isIncluded(rel)
}

// addTree adds root and every non-ignored directory below it.
func (n *Notifier) addTree() error {
	_, err := n.walk(n.root, false)
	return err
}

// addNewDir watches the tree created at path. It reports whether path is a
// directory and whether the tree already contains included files, which
// were written before the watch was in place.
func (n *Notifier) addNewDir(path, rel string) (isDir, populated bool) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false, false
	}
	if n.isIgnoredDir(rel) {
		return true, false
	}
	populated, err = n.walk(path, true)
	if err != nil {
		n.logger.Warn("add new directory", "path", path, "error", err)
	}
	n.logger.Debug("watching new directory", "path", rel)
	return true, populated
}

// walk adds start and every non-ignored directory below it. With scan set it
// also reports whether an included, non-ignored file exists in the tree.
func (n *Notifier) walk(start string, scan bool) (bool, error) {
	found := false
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == start {
				return walkErr
			}
			n.logger.Warn("skipping inaccessible path", "path", path, "error", walkErr)
			return nil
		}
		if path == n.root {
			return n.add(path)
		}
		rel, ok := pathutil.Rel(n.root, path)
		if !d.IsDir() {
			if scan && ok && !n.isIgnored(rel) && n.isIncluded(rel) {
				found = true
			}
			return nil
		}
		if !ok || n.isIgnoredDir(rel) {
			return filepath.SkipDir
		}
		return n.add(path)
	})
	return found, err
}

func (n *Notifier) add(path string) error {
	if err := n.fsw.Add(path); err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	return nil
}

func (n *Notifier) isIgnoredDir(rel string) bool {
	return n.isIgnored(rel) || n.isIgnored(rel+"/")
}

func (n *Notifier) isIgnored(rel string) bool {
	return matchAny(n.ignore, rel)
}

// isIncluded reports whether rel matches an include pattern. No patterns
// means everything is included.
func (n *Notifier) isIncluded(rel string) bool {
	if len(n.include) == 0 {
		return true
	}
	return matchAny(n.include, rel)
}

func (n *Notifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, kind string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid %s pattern %q", kind, pattern)
		}
	}
	return nil
}

func startError(root string, err error) error {
	return &domain.WatchStartError{Path: root, Err: err}
}
