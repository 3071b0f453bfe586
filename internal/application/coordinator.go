package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// CoordinatorConfig wires a Coordinator to its collaborators.
type CoordinatorConfig struct {
	Builder  Builder
	Launcher Launcher
	Registry *ProcessRegistry
	Mode     domain.BuildMode
	Logger   *slog.Logger
	OnResult ResultCallback
	// NewID generates build IDs. Defaults to ULIDs.
	NewID func() string
}

// buildTask is one in-flight build-and-run. done is closed after the task has
// reported its result and will not touch the registry again.
type buildTask struct {
	req    domain.BuildRequest
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator drives rebuild-on-change. Ticks are handled one at a time: the
// in-flight task is cancelled and awaited, the running process is killed, and
// only then is a new task started. At most one task and one process exist at
// any moment.
type Coordinator struct {
	builder  Builder
	launcher Launcher
	registry *ProcessRegistry
	mode     domain.BuildMode
	logger   *slog.Logger
	onResult ResultCallback
	newID    func() string

	// tickMu serializes HandleTick and Shutdown.
	tickMu sync.Mutex
	task   *buildTask

	mu      sync.Mutex
	state   domain.State
	current *buildTask
	seq     int
}

// NewCoordinator creates a Coordinator in the Idle state.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = &ProcessRegistry{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	mode := cfg.Mode
	if mode == "" {
		mode = domain.ModeDev
	}
	return &Coordinator{
		builder:  cfg.Builder,
		launcher: cfg.Launcher,
		registry: registry,
		mode:     mode,
		logger:   logger,
		onResult: cfg.OnResult,
		newID:    newID,
		state:    domain.StateIdle,
	}
}

// Run handles ticks until ticks is closed or ctx is done, then shuts down.
func (c *Coordinator) Run(ctx context.Context, ticks <-chan domain.Tick) error {
	for {
		select {
		case <-ctx.Done():
			c.Shutdown(context.WithoutCancel(ctx))
			return nil
		case _, ok := <-ticks:
			if !ok {
				c.Shutdown(context.WithoutCancel(ctx))
				return nil
			}
			c.HandleTick(ctx)
		}
	}
}

// HandleTick cancels the in-flight build, kills the running process and
// launches a fresh build-and-run task. It returns once the new task has been
// dispatched, not when it completes.
func (c *Coordinator) HandleTick(ctx context.Context) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if c.State() == domain.StateStopped {
		return
	}

	c.cancelTask()
	c.killCurrent(ctx)

	c.mu.Lock()
	c.seq++
	req := domain.BuildRequest{ID: c.newID(), Seq: c.seq, Mode: c.mode}
	taskCtx, cancel := context.WithCancel(ctx)
	task := &buildTask{req: req, cancel: cancel, done: make(chan struct{})}
	c.current = task
	c.state = domain.StateBuilding
	c.mu.Unlock()

	c.task = task
	go c.runTask(taskCtx, task)
}

// Shutdown aborts any in-flight build, kills any running process and moves
// to the terminal Stopped state. Later ticks are ignored.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.cancelTask()
	c.killCurrent(ctx)

	c.mu.Lock()
	c.state = domain.StateStopped
	c.current = nil
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Seq returns the number of ticks handled so far.
func (c *Coordinator) Seq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// cancelTask cancels the in-flight task and blocks until it has finished, so
// its build subprocess is gone and it can no longer store a process.
func (c *Coordinator) cancelTask() {
	if c.task == nil {
		return
	}
	c.task.cancel()
	<-c.task.done
	c.task = nil
}

func (c *Coordinator) killCurrent(ctx context.Context) {
	if p := c.registry.Take(); p != nil {
		c.kill(ctx, p)
	}
}

func (c *Coordinator) kill(ctx context.Context, p domain.ManagedProcess) {
	pid := p.PID()
	c.logger.Info("stopping server", "pid", pid)
	if err := p.Kill(context.WithoutCancel(ctx)); err != nil {
		var killErr *domain.KillError
		if !errors.As(err, &killErr) {
			err = &domain.KillError{PID: pid, Err: err}
		}
		c.logger.Warn("kill failed", "pid", pid, "error", err)
	}
}

func (c *Coordinator) runTask(ctx context.Context, task *buildTask) {
	defer close(task.done)
	defer task.cancel()

	req := task.req
	result := domain.BuildResult{ID: req.ID, Seq: req.Seq, Mode: req.Mode, StartedAt: time.Now()}
	finish := func(status domain.BuildStatus, err error) {
		result.Status = status
		result.Err = err
		result.Duration = time.Since(result.StartedAt)
		if status != domain.BuildSucceeded {
			c.setTaskState(task, domain.StateIdle)
		}
		if c.onResult != nil {
			c.onResult(result)
		}
	}

	if ctx.Err() != nil {
		finish(domain.BuildCancelled, ctx.Err())
		return
	}

	log := c.logger.With("build_id", req.ID, "seq", req.Seq, "mode", req.Mode)
	log.Info("build started")
	if err := c.builder.Build(ctx, req); err != nil {
		if ctx.Err() != nil {
			log.Info("build cancelled")
			finish(domain.BuildCancelled, ctx.Err())
			return
		}
		log.Error("build failed", "error", err)
		finish(domain.BuildFailed, err)
		return
	}

	if ctx.Err() != nil {
		log.Info("build cancelled before launch")
		finish(domain.BuildCancelled, ctx.Err())
		return
	}

	proc, err := c.launcher.Launch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			finish(domain.BuildCancelled, ctx.Err())
			return
		}
		log.Error("run failed", "error", err)
		finish(domain.RunFailed, err)
		return
	}
	result.PID = proc.PID()

	if ctx.Err() != nil {
		// Superseded while launching: the next tick must not inherit this process.
		c.kill(ctx, proc)
		finish(domain.BuildCancelled, ctx.Err())
		return
	}

	if displaced := c.registry.Put(proc); displaced != nil {
		log.Error("registry already held a process", "pid", displaced.PID())
		c.kill(ctx, displaced)
	}
	c.setTaskState(task, domain.StateRunning)
	log.Info("server started", "pid", result.PID)
	finish(domain.BuildSucceeded, nil)
}

// setTaskState changes the state only if task is still the current one.
func (c *Coordinator) setTaskState(task *buildTask, state domain.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == task && c.state != domain.StateStopped {
		c.state = state
	}
}
