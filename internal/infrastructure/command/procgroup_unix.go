//go:build unix

package command

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// processGroup is the process group a command runs in, so that the whole
// tree (e.g. the compiler and its children) can be signalled at once.
type processGroup struct {
	cmd *exec.Cmd
}

// newProcessGroup must be called before cmd is started.
func newProcessGroup(cmd *exec.Cmd) *processGroup {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return &processGroup{cmd: cmd}
}

// attach is a no-op: Setpgid already placed the child in its own group.
func (g *processGroup) attach() error { return nil }

func (g *processGroup) release() {}

func (g *processGroup) terminate() error { return g.signal(unix.SIGTERM) }

func (g *processGroup) kill() error { return g.signal(unix.SIGKILL) }

// signal signals the group led by the command. A group that no longer exists
// is not an error.
func (g *processGroup) signal(sig unix.Signal) error {
	p := g.cmd.Process
	if p == nil {
		return nil
	}
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
