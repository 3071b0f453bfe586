package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

type coordinatorFixture struct {
	builder     *fakeBuilder
	launcher    *fakeLauncher
	registry    *ProcessRegistry
	results     *resultRecorder
	coordinator *Coordinator
}

func newCoordinatorFixture() *coordinatorFixture {
	f := &coordinatorFixture{
		builder:  newFakeBuilder(),
		launcher: &fakeLauncher{},
		registry: &ProcessRegistry{},
		results:  newResultRecorder(),
	}
	seq := 0
	f.coordinator = NewCoordinator(CoordinatorConfig{
		Builder:  f.builder,
		Launcher: f.launcher,
		Registry: f.registry,
		Mode:     domain.ModeDev,
		OnResult: f.results.callback,
		NewID: func() string {
			seq++
			return fmt.Sprintf("build-%d", seq)
		},
	})
	return f
}

func TestCoordinatorStartsIdle(t *testing.T) {
	f := newCoordinatorFixture()
	assert.Equal(t, domain.StateIdle, f.coordinator.State())
	assert.Equal(t, 0, f.coordinator.Seq())
}

func TestCoordinatorTickBuildsAndRuns(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	f.coordinator.HandleTick(ctx)
	first := f.results.next(t)
	require.Equal(t, domain.BuildSucceeded, first.Status)
	assert.Equal(t, "build-1", first.ID)
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, domain.ModeDev, first.Mode)
	assert.NotZero(t, first.PID)
	assert.True(t, f.registry.Occupied())
	assert.Equal(t, domain.StateRunning, f.coordinator.State())

	// A second tick kills the first process before building again.
	f.coordinator.HandleTick(ctx)
	procs := f.launcher.processes()
	require.Len(t, procs, 1, "new build must not have launched before the old process was killed")
	assert.True(t, procs[0].Killed())

	second := f.results.next(t)
	require.Equal(t, domain.BuildSucceeded, second.Status)
	assert.Equal(t, 2, second.Seq)

	procs = f.launcher.processes()
	require.Len(t, procs, 2)
	assert.False(t, procs[1].Killed())
	assert.Equal(t, 1, f.launcher.alive())
}

func TestCoordinatorCancelsInFlightBuild(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	hold := make(chan struct{})
	f.builder.setHold(hold)

	f.coordinator.HandleTick(ctx)
	select {
	case <-f.builder.started:
	case <-time.After(waitTimeout):
		t.Fatal("first build never started")
	}
	assert.Equal(t, domain.StateBuilding, f.coordinator.State())

	f.coordinator.HandleTick(ctx)

	// The cancellation was observed before HandleTick returned.
	_, _, cancelled := f.builder.stats()
	assert.Equal(t, 1, cancelled)

	res := f.results.next(t)
	assert.Equal(t, domain.BuildCancelled, res.Status)
	assert.Equal(t, 1, res.Seq)
	assert.ErrorIs(t, res.Err, context.Canceled)

	close(hold)
	res = f.results.next(t)
	assert.Equal(t, domain.BuildSucceeded, res.Status)
	assert.Equal(t, 2, res.Seq)

	_, maxActive, _ := f.builder.stats()
	assert.Equal(t, 1, maxActive, "builds must never overlap")
}

func TestCoordinatorBuildFailureLeavesRegistryEmpty(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	f.builder.setErr(errBoom)
	f.coordinator.HandleTick(ctx)

	res := f.results.next(t)
	require.Equal(t, domain.BuildFailed, res.Status)
	var buildErr *domain.BuildError
	assert.ErrorAs(t, res.Err, &buildErr)
	assert.False(t, f.registry.Occupied())
	assert.Empty(t, f.launcher.processes())
	assert.Equal(t, domain.StateIdle, f.coordinator.State())

	// Still responsive: the next tick triggers a fresh attempt.
	f.builder.setErr(nil)
	f.coordinator.HandleTick(ctx)
	res = f.results.next(t)
	assert.Equal(t, domain.BuildSucceeded, res.Status)
	assert.True(t, f.registry.Occupied())
}

func TestCoordinatorBuildFailureStopsPreviousServer(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	f.coordinator.HandleTick(ctx)
	require.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)

	f.builder.setErr(errBoom)
	f.coordinator.HandleTick(ctx)
	require.Equal(t, domain.BuildFailed, f.results.next(t).Status)

	assert.Equal(t, 0, f.launcher.alive(), "stale server must not keep running after a failed build")
	assert.False(t, f.registry.Occupied())
}

func TestCoordinatorRunFailure(t *testing.T) {
	f := newCoordinatorFixture()

	f.launcher.setErr(errBoom)
	f.coordinator.HandleTick(context.Background())

	res := f.results.next(t)
	require.Equal(t, domain.RunFailed, res.Status)
	var runErr *domain.RunError
	assert.ErrorAs(t, res.Err, &runErr)
	assert.False(t, f.registry.Occupied())
	assert.Equal(t, domain.StateIdle, f.coordinator.State())
}

func TestCoordinatorKillErrorIsNotFatal(t *testing.T) {
	f := newCoordinatorFixture()
	f.launcher.killErr = errors.New("no such process")
	ctx := context.Background()

	f.coordinator.HandleTick(ctx)
	require.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)

	f.coordinator.HandleTick(ctx)
	assert.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)
}

func TestCoordinatorRapidTicksKeepAtMostOneProcess(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		f.coordinator.HandleTick(ctx)
		assert.LessOrEqual(t, f.launcher.alive(), 1, "tick %d", i+1)
	}
	f.results.nextWithStatus(t, domain.BuildSucceeded)
	eventually(t, func() bool { return f.coordinator.State() == domain.StateRunning }, "last build running")

	assert.Equal(t, 1, f.launcher.alive())
	_, maxActive, _ := f.builder.stats()
	assert.Equal(t, 1, maxActive)
}

func TestCoordinatorShutdown(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	f.coordinator.HandleTick(ctx)
	require.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)

	f.coordinator.Shutdown(ctx)
	assert.Equal(t, domain.StateStopped, f.coordinator.State())
	assert.Equal(t, 0, f.launcher.alive())
	assert.False(t, f.registry.Occupied())

	f.coordinator.HandleTick(ctx)
	assert.Equal(t, 1, f.coordinator.Seq(), "ticks after shutdown are ignored")
}

func TestCoordinatorShutdownCancelsBuild(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()
	f.builder.setHold(make(chan struct{}))

	f.coordinator.HandleTick(ctx)
	<-f.builder.started

	f.coordinator.Shutdown(ctx)
	_, _, cancelled := f.builder.stats()
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, domain.BuildCancelled, f.results.next(t).Status)
	assert.Empty(t, f.launcher.processes())
}

func TestCoordinatorRunLoop(t *testing.T) {
	f := newCoordinatorFixture()
	ticks := make(chan domain.Tick)
	done := make(chan error, 1)

	go func() { done <- f.coordinator.Run(context.Background(), ticks) }()

	ticks <- domain.Tick{}
	require.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)
	ticks <- domain.Tick{}
	require.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)
	close(ticks)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after ticks closed")
	}
	assert.Equal(t, domain.StateStopped, f.coordinator.State())
	assert.Equal(t, 0, f.launcher.alive())
}

func TestCoordinatorRunStopsOnCancel(t *testing.T) {
	f := newCoordinatorFixture()
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan domain.Tick)
	done := make(chan error, 1)

	go func() { done <- f.coordinator.Run(ctx, ticks) }()
	ticks <- domain.Tick{}
	require.Equal(t, domain.BuildSucceeded, f.results.next(t).Status)

	cancel()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, f.launcher.alive())
}
