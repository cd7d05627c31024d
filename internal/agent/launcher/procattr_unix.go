//go:build unix

package launcher

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcGroup puts the agent at the head of a new process group so that
// signals reach the tools and shells it started.
func setProcGroup(cmd *exec.Cmd) {
	attr := &syscall.SysProcAttr{Setpgid: true}
	dieWithParent(attr)
	cmd.SysProcAttr = attr
}

func terminateProcessGroup(pid int) error { return signalGroup(pid, syscall.SIGTERM) }

func killProcessGroup(pid int) error { return signalGroup(pid, syscall.SIGKILL) }

// signalGroup signals the group led by pid. A group that already exited is
// not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
