//go:build unix

package engine

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcess puts the engine and its ffmpeg children in their own
// process group so cancellation kills all of them.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
}
