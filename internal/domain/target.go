package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// DefaultDebounce is the quiet period used when no debounce window is configured.
const DefaultDebounce = 300 * time.Millisecond

// defaultIgnores are excluded from every watch target: VCS metadata, dependency
// and build output directories, the tool's own state, and editor noise.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/target/**",
	"**/.devwatch/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// ChangeEvent signals that something under a watch target changed.
type ChangeEvent struct{}

// Tick is a single debounced "rebuild now" signal.
type Tick struct{}

// WatchTarget describes what to watch. It is immutable once constructed.
type WatchTarget struct {
	root    string
	include []string
	ignore  []string
}

// NewWatchTarget builds a target rooted at root. Include and ignore are
// doublestar patterns relative to root; the default ignores are always added.
func NewWatchTarget(root string, include, ignore []string) (WatchTarget, error) {
	if root == "" {
		return WatchTarget{}, fmt.Errorf("%w: empty root", ErrInvalidWatchTarget)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return WatchTarget{}, fmt.Errorf("%w: %v", ErrInvalidWatchTarget, err)
	}
	ignores := make([]string, 0, len(defaultIgnores)+len(ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, ignore...)
	return WatchTarget{
		root:    abs,
		include: append([]string(nil), include...),
		ignore:  ignores,
	}, nil
}

// Root returns the absolute root directory.
func (t WatchTarget) Root() string { return t.root }

// Include returns a copy of the include patterns. Empty means everything.
func (t WatchTarget) Include() []string { return append([]string(nil), t.include...) }

// Ignore returns a copy of the ignore patterns, defaults first.
func (t WatchTarget) Ignore() []string { return append([]string(nil), t.ignore...) }

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return append([]string(nil), defaultIgnores...)
}
