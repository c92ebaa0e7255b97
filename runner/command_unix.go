//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

func prepareCommand(cmd *exec.Cmd) {
	// Run in its own process group so cancellation takes the runner's
	// worker children down with it, not just the launcher.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
