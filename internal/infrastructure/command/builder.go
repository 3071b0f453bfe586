package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// Builder runs the build command. Cancelling the context kills the whole
// build process group before Build returns.
type Builder struct {
	Command     []string
	ReleaseArgs []string
	Env         map[string]string
	Dir         string
	// Stamp is the build ID file written after a successful build. Empty disables it.
	Stamp  string
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Build implements application.Builder.
func (b *Builder) Build(ctx context.Context, req domain.BuildRequest) error {
	if len(b.Command) == 0 {
		return &domain.BuildError{Err: errors.New("no build command configured")}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := b.args(req.Mode)
	line := strings.Join(args, " ")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = b.Dir
	cmd.Env = environ(b.Env, req)
	cmd.Stdout = writerOr(b.Stdout, os.Stdout)
	cmd.Stderr = writerOr(b.Stderr, os.Stderr)
	group := newProcessGroup(cmd)
	cmd.Cancel = group.kill
	cmd.WaitDelay = waitDelay

	log := loggerOr(b.Logger)
	log.Debug("running build", "command", line, "dir", b.Dir, "build_id", req.ID)
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.BuildError{Command: line, Err: err}
	}
	if err := group.attach(); err != nil {
		log.Warn("build children will not be tracked", "build_id", req.ID, "error", err)
	}
	err := cmd.Wait()
	group.release()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.BuildError{Command: line, Err: err}
	}

	if b.Stamp != "" {
		if err := WriteStamp(b.Stamp, req.ID); err != nil {
			return &domain.BuildError{Command: line, Err: fmt.Errorf("write build stamp: %w", err)}
		}
	}
	return nil
}

func (b *Builder) args(mode domain.BuildMode) []string {
	args := append([]string(nil), b.Command...)
	if mode == domain.ModeRelease {
		args = append(args, b.ReleaseArgs...)
	}
	return args
}
