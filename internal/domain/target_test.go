package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatchTarget(t *testing.T) {
	dir := t.TempDir()

	target, err := NewWatchTarget(dir, []string{"**/*.go"}, []string{"bin/**"})
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(target.Root()))
	assert.Equal(t, []string{"**/*.go"}, target.Include())
	assert.Contains(t, target.Ignore(), "bin/**")
	assert.Contains(t, target.Ignore(), "**/.git/**")
}

func TestNewWatchTargetRejectsEmptyRoot(t *testing.T) {
	_, err := NewWatchTarget("", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWatchTarget)
}

func TestWatchTargetIsImmutable(t *testing.T) {
	include := []string{"**/*.go"}
	target, err := NewWatchTarget(t.TempDir(), include, nil)
	require.NoError(t, err)

	include[0] = "changed"
	got := target.Include()
	got = append(got[:0], "mutated")

	assert.Equal(t, []string{"**/*.go"}, target.Include())
	assert.NotEqual(t, got, target.Include())
}

func TestDefaultIgnoresReturnsCopy(t *testing.T) {
	a := DefaultIgnores()
	a[0] = "changed"
	assert.Equal(t, "**/.git/**", DefaultIgnores()[0])
}

func TestParseBuildMode(t *testing.T) {
	tests := []struct {
		in      string
		want    BuildMode
		wantErr bool
	}{
		{"", ModeDev, false},
		{"dev", ModeDev, false},
		{"release", ModeRelease, false},
		{"debug", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBuildMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidMode, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "building", StateBuilding.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var startErr *WatchStartError
	err := fmt.Errorf("wrapped: %w", &WatchStartError{Path: "/src", Err: cause})
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "/src", startErr.Path)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, &BuildError{Command: "go build", Err: cause}, cause)
	assert.ErrorIs(t, &RunError{Command: "./server", Err: cause}, cause)
	assert.ErrorIs(t, &KillError{PID: 42, Err: cause}, cause)
	assert.ErrorIs(t, &WatchRuntimeError{Fatal: true, Err: cause}, cause)

	assert.Contains(t, (&WatchRuntimeError{Fatal: true, Err: cause}).Error(), "failed")
	assert.Contains(t, (&KillError{PID: 42, Err: cause}).Error(), "42")
}

func TestBuildResultRecord(t *testing.T) {
	res := BuildResult{ID: "01H", Seq: 3, Mode: ModeRelease, Status: BuildFailed, Err: errors.New("exit status 2")}
	rec := res.Record()
	assert.Equal(t, "01H", rec.ID)
	assert.Equal(t, 3, rec.Seq)
	assert.Equal(t, ModeRelease, rec.Mode)
	assert.Equal(t, "exit status 2", rec.Error)

	ok := BuildResult{Status: BuildSucceeded, PID: 77}.Record()
	assert.Empty(t, ok.Error)
	assert.Equal(t, 77, ok.PID)
}
