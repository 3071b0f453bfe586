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

// AssetPipelineConfig holds everything StartAssetPipeline needs.
type AssetPipelineConfig struct {
	Target   domain.WatchTarget
	Debounce time.Duration
	Mode     domain.BuildMode
	Notifier NotifierStarter
	Builder  Builder
	// Reload is told about every successful asset build. Nil only logs.
	Reload   ReloadBroadcaster
	Logger   *slog.Logger
	OnResult ResultCallback
	// InitialBuild triggers one asset build right after startup.
	InitialBuild bool
	NewID        func() string
}

// AssetPipeline rebuilds client assets on change and reloads browsers. It
// never touches the server process: a change only supersedes the previous
// asset build.
type AssetPipeline struct {
	notifier ChangeNotifier
	builder  Builder
	reload   ReloadBroadcaster
	mode     domain.BuildMode
	logger   *slog.Logger
	onResult ResultCallback
	newID    func() string
	cancel   context.CancelFunc
	done     chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	err      error
	seq      int
}

// StartAssetPipeline begins watching the frontend target. Only a failure to
// start watching is returned; it is a *domain.WatchStartError.
func StartAssetPipeline(ctx context.Context, cfg AssetPipelineConfig) (*AssetPipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pipeline", "frontend")

	notifier, err := cfg.Notifier.Start(cfg.Target)
	if err != nil {
		var startErr *domain.WatchStartError
		if !errors.As(err, &startErr) {
			err = &domain.WatchStartError{Path: cfg.Target.Root(), Err: err}
		}
		return nil, err
	}

	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	mode := cfg.Mode
	if mode == "" {
		mode = domain.ModeDev
	}

	runCtx, cancel := context.WithCancel(ctx)
	p := &AssetPipeline{
		notifier: notifier,
		builder:  cfg.Builder,
		reload:   cfg.Reload,
		mode:     mode,
		logger:   logger,
		onResult: cfg.OnResult,
		newID:    newID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	changes := notifier.Changes()
	if cfg.InitialBuild {
		changes = withInitialChange(runCtx, changes)
	}
	ticks := Debounce(runCtx, changes, cfg.Debounce)

	logger.Info("watching", "root", cfg.Target.Root(), "debounce", cfg.Debounce)

	go func() {
		defer close(p.done)
		p.run(runCtx, ticks)
		if err := notifier.Err(); err != nil {
			logger.Error("watch stream terminated", "error", err)
			p.setErr(err)
		}
	}()
	return p, nil
}

// Stop stops watching and cancels any in-flight asset build. Later calls
// wait the same way and return domain.ErrSupervisorStopped.
func (p *AssetPipeline) Stop(ctx context.Context) error {
	stopErr := domain.ErrSupervisorStopped
	p.stopOnce.Do(func() {
		stopErr = p.notifier.Stop()
		p.cancel()
	})
	select {
	case <-p.done:
		return stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the pipeline loop has exited.
func (p *AssetPipeline) Done() <-chan struct{} { return p.done }

// Err returns the terminal watch error, if any.
func (p *AssetPipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *AssetPipeline) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *AssetPipeline) run(ctx context.Context, ticks <-chan domain.Tick) {
	var task *buildTask
	cancelTask := func() {
		if task != nil {
			task.cancel()
			<-task.done
			task = nil
		}
	}
	defer cancelTask()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			cancelTask()
			p.seq++
			req := domain.BuildRequest{ID: p.newID(), Seq: p.seq, Mode: p.mode}
			taskCtx, cancel := context.WithCancel(ctx)
			task = &buildTask{req: req, cancel: cancel, done: make(chan struct{})}
			go p.build(taskCtx, task)
		}
	}
}

func (p *AssetPipeline) build(ctx context.Context, task *buildTask) {
	defer close(task.done)
	defer task.cancel()

	req := task.req
	result := domain.BuildResult{ID: req.ID, Seq: req.Seq, Mode: req.Mode, StartedAt: time.Now()}
	log := p.logger.With("build_id", req.ID, "seq", req.Seq)

	log.Info("build started")
	err := p.builder.Build(ctx, req)
	switch {
	case ctx.Err() != nil:
		log.Info("build cancelled")
		result.Status, result.Err = domain.BuildCancelled, ctx.Err()
	case err != nil:
		log.Error("build failed", "error", err)
		result.Status, result.Err = domain.BuildFailed, err
	default:
		result.Status = domain.BuildSucceeded
		if p.reload != nil {
			p.reload.Broadcast(req.ID)
		}
		log.Info("assets rebuilt")
	}
	result.Duration = time.Since(result.StartedAt)
	if p.onResult != nil {
		p.onResult(result)
	}
}
