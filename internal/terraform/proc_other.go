//go:build !linux && !darwin

package terraform

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(_ *exec.Cmd) {}

func terminateGroup(proc *os.Process, _ time.Duration, _ <-chan struct{}) error {
	return proc.Kill()
}
