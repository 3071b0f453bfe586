package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

type pipelineFixture struct {
	notifier *fakeNotifier
	builder  *fakeBuilder
	reload   *fakeReload
	results  *resultRecorder
	cfg      AssetPipelineConfig
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	target, err := domain.NewWatchTarget(t.TempDir(), nil, nil)
	require.NoError(t, err)

	f := &pipelineFixture{
		notifier: newFakeNotifier(),
		builder:  newFakeBuilder(),
		reload:   &fakeReload{},
		results:  newResultRecorder(),
	}
	f.cfg = AssetPipelineConfig{
		Target:   target,
		Debounce: 10 * time.Millisecond,
		Notifier: fakeStarter{notifier: f.notifier},
		Builder:  f.builder,
		Reload:   f.reload,
		OnResult: f.results.callback,
	}
	return f
}

func (f *pipelineFixture) start(t *testing.T) *AssetPipeline {
	t.Helper()
	p, err := StartAssetPipeline(context.Background(), f.cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func (f *pipelineFixture) change(t *testing.T) {
	t.Helper()
	select {
	case f.notifier.changes <- domain.ChangeEvent{}:
	case <-time.After(waitTimeout):
		t.Fatal("pipeline did not read the change")
	}
}

func TestAssetPipelineBuildsAndBroadcasts(t *testing.T) {
	f := newPipelineFixture(t)
	f.cfg.InitialBuild = true
	f.start(t)

	res := f.results.next(t)
	assert.Equal(t, domain.BuildSucceeded, res.Status)
	assert.Equal(t, 1, res.Seq)
	assert.Equal(t, domain.ModeDev, res.Mode)
	assert.Zero(t, res.PID)
	assert.Equal(t, []string{res.ID}, f.reload.broadcasts())
}

func TestAssetPipelineWaitsForChange(t *testing.T) {
	f := newPipelineFixture(t)
	f.start(t)

	time.Sleep(50 * time.Millisecond)
	calls, _, _ := f.builder.stats()
	assert.Zero(t, calls)

	f.change(t)
	assert.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)
}

func TestAssetPipelineFailureSkipsBroadcast(t *testing.T) {
	f := newPipelineFixture(t)
	f.builder.setErr(errBoom)
	f.start(t)

	f.change(t)
	res := f.results.next(t)
	assert.Equal(t, domain.BuildFailed, res.Status)
	var buildErr *domain.BuildError
	assert.ErrorAs(t, res.Err, &buildErr)
	assert.Empty(t, f.reload.broadcasts())
}

func TestAssetPipelineChangeSupersedesBuild(t *testing.T) {
	f := newPipelineFixture(t)
	hold := make(chan struct{})
	f.builder.setHold(hold)
	f.start(t)

	f.change(t)
	select {
	case <-f.builder.started:
	case <-time.After(waitTimeout):
		t.Fatal("first asset build never started")
	}

	f.change(t)
	assert.Equal(t, domain.BuildCancelled, f.results.next(t).Status)

	close(hold)
	res := f.results.next(t)
	assert.Equal(t, domain.BuildSucceeded, res.Status)
	assert.Equal(t, 2, res.Seq)

	_, maxActive, cancelled := f.builder.stats()
	assert.Equal(t, 1, maxActive, "asset builds must never overlap")
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, []string{res.ID}, f.reload.broadcasts())
}

func TestAssetPipelineWithoutReloadOnlyReports(t *testing.T) {
	f := newPipelineFixture(t)
	f.cfg.Reload = nil
	f.cfg.InitialBuild = true
	f.start(t)

	assert.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)
}

func TestAssetPipelineStop(t *testing.T) {
	f := newPipelineFixture(t)
	f.builder.setHold(make(chan struct{}))
	f.cfg.InitialBuild = true
	p := f.start(t)

	select {
	case <-f.builder.started:
	case <-time.After(waitTimeout):
		t.Fatal("initial asset build never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, domain.BuildCancelled, f.results.next(t).Status)
	assert.NoError(t, p.Err())
	assert.ErrorIs(t, p.Stop(ctx), domain.ErrSupervisorStopped)
}

func TestAssetPipelineFatalWatchError(t *testing.T) {
	f := newPipelineFixture(t)
	p := f.start(t)

	f.notifier.fail(errBoom)
	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatal("pipeline did not stop after watcher failure")
	}
	var runtimeErr *domain.WatchRuntimeError
	assert.ErrorAs(t, p.Err(), &runtimeErr)
}

func TestStartAssetPipelineWrapsStartError(t *testing.T) {
	f := newPipelineFixture(t)
	f.cfg.Notifier = fakeStarter{err: errBoom}

	p, err := StartAssetPipeline(context.Background(), f.cfg)
	assert.Nil(t, p)
	var startErr *domain.WatchStartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, f.cfg.Target.Root(), startErr.Path)
	assert.ErrorIs(t, err, errBoom)
}
