//go:build linux || darwin

package terraform

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup puts terraform and its provider plugins in their own
// group so termination reaches all of them.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the process group and escalates to
// SIGKILL once grace has passed unless done is closed first.
func terminateGroup(proc *os.Process, grace time.Duration, done <-chan struct{}) error {
	pgid := proc.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return proc.Kill()
	}
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
	}()
	return nil
}
