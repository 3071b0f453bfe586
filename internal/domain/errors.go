package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWatchTarget = errors.New("invalid watch target")
	ErrInvalidMode        = errors.New("invalid build mode")
	ErrSupervisorStopped  = errors.New("supervisor stopped")
)

// WatchStartError means observation could not begin. It is fatal at startup.
type WatchStartError struct {
	Path string
	Err  error
}

func (e *WatchStartError) Error() string {
	return fmt.Sprintf("start watching %s: %v", e.Path, e.Err)
}

func (e *WatchStartError) Unwrap() error { return e.Err }

// WatchRuntimeError is a failure of the watch primitive after startup.
// Fatal errors terminate the notification stream.
type WatchRuntimeError struct {
	Fatal bool
	Err   error
}

func (e *WatchRuntimeError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("watcher failed: %v", e.Err)
	}
	return fmt.Sprintf("watcher error: %v", e.Err)
}

func (e *WatchRuntimeError) Unwrap() error { return e.Err }

// BuildError is a failed compile. Recovered by waiting for the next change.
type BuildError struct {
	Command string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed (%s): %v", e.Command, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// RunError is a failure to spawn the server after a successful build.
type RunError struct {
	Command string
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed (%s): %v", e.Command, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// KillError is a best-effort termination failure. It is only ever logged.
type KillError struct {
	PID int
	Err error
}

func (e *KillError) Error() string {
	return fmt.Sprintf("kill pid %d: %v", e.PID, e.Err)
}

func (e *KillError) Unwrap() error { return e.Err }
