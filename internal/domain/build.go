package domain

import (
	"context"
	"fmt"
	"time"
)

// BuildMode selects how the project is compiled.
type BuildMode string

const (
	ModeDev     BuildMode = "dev"
	ModeRelease BuildMode = "release"
)

// ParseBuildMode converts a flag or config value into a BuildMode.
// An empty value means ModeDev.
func ParseBuildMode(s string) (BuildMode, error) {
	switch BuildMode(s) {
	case "", ModeDev:
		return ModeDev, nil
	case ModeRelease:
		return ModeRelease, nil
	default:
		return "", fmt.Errorf("%w: %q (want dev|release)", ErrInvalidMode, s)
	}
}

// BuildRequest identifies one build task.
type BuildRequest struct {
	ID   string
	Seq  int
	Mode BuildMode
}

// ManagedProcess is a handle to the running server under development.
type ManagedProcess interface {
	PID() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Kill terminates the process. A process that already exited is not an error.
	Kill(ctx context.Context) error
}

// BuildStatus is the outcome of a build task.
type BuildStatus string

const (
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "build_failed"
	RunFailed      BuildStatus = "run_failed"
	BuildCancelled BuildStatus = "cancelled"
)

// BuildResult reports how a build task ended.
type BuildResult struct {
	ID        string
	Seq       int
	Mode      BuildMode
	Status    BuildStatus
	StartedAt time.Time
	Duration  time.Duration
	PID       int
	Err       error
}

// Record converts the result into its persisted form.
func (r BuildResult) Record() BuildRecord {
	rec := BuildRecord{
		ID:        r.ID,
		Seq:       r.Seq,
		Mode:      r.Mode,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		PID:       r.PID,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// State is the Rebuild Coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
