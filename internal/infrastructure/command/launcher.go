package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// DefaultKillTimeout is how long Kill waits after SIGTERM before SIGKILL.
const DefaultKillTimeout = 5 * time.Second

// Launcher starts the server command in its own process group.
type Launcher struct {
	Command     []string
	Env         map[string]string
	Dir         string
	KillTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
	Logger      *slog.Logger
}

// Launch implements application.Launcher. The server is not bound to ctx: it
// keeps running until Kill is called or it exits on its own.
func (l *Launcher) Launch(ctx context.Context, req domain.BuildRequest) (domain.ManagedProcess, error) {
	if len(l.Command) == 0 {
		return nil, &domain.RunError{Err: errors.New("no run command configured")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	line := strings.Join(l.Command, " ")
	cmd := exec.CommandContext(context.WithoutCancel(ctx), l.Command[0], l.Command[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = environ(l.Env, req)
	cmd.Stdout = writerOr(l.Stdout, os.Stdout)
	cmd.Stderr = writerOr(l.Stderr, os.Stderr)
	cmd.WaitDelay = waitDelay
	group := newProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &domain.RunError{Command: line, Err: err}
	}
	log := loggerOr(l.Logger).With("pid", cmd.Process.Pid, "build_id", req.ID)
	if err := group.attach(); err != nil {
		log.Warn("server children will not be tracked", "error", err)
	}

	timeout := l.KillTimeout
	if timeout <= 0 {
		timeout = DefaultKillTimeout
	}
	p := &Process{
		cmd:         cmd,
		group:       group,
		pid:         cmd.Process.Pid,
		killTimeout: timeout,
		logger:      log,
		done:        make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

// Process is a running server. It is reaped in the background; an exit that
// was not requested through Kill is logged and otherwise left alone.
type Process struct {
	cmd         *exec.Cmd
	group       *processGroup
	pid         int
	killTimeout time.Duration
	logger      *slog.Logger
	done        chan struct{}

	mu      sync.Mutex
	killing bool
	waitErr error
}

func (p *Process) PID() int { return p.pid }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the error reported by Wait. Only meaningful after Done.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Kill sends SIGTERM to the process group and escalates to SIGKILL after the
// kill timeout or when ctx is done. A process that already exited is not an
// error.
func (p *Process) Kill(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.mu.Lock()
	p.killing = true
	p.mu.Unlock()

	if err := p.group.terminate(); err != nil {
		return &domain.KillError{PID: p.pid, Err: err}
	}

	timer := time.NewTimer(p.killTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		p.logger.Warn("server ignored SIGTERM, killing", "timeout", p.killTimeout)
	case <-ctx.Done():
	}

	if err := p.group.kill(); err != nil {
		return &domain.KillError{PID: p.pid, Err: err}
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return &domain.KillError{PID: p.pid, Err: ctx.Err()}
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.group.release()

	p.mu.Lock()
	p.waitErr = err
	killing := p.killing
	p.mu.Unlock()
	close(p.done)

	switch {
	case killing:
		p.logger.Debug("server stopped")
	case err != nil:
		p.logger.Warn("server exited", "error", err)
	default:
		p.logger.Info("server exited")
	}
}
