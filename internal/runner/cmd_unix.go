//go:build !windows

package runner

import (
	"os"
	"os/exec"
	"syscall"
)

// SetupCommand places the child in its own process group so the whole
// tree can be signalled together.
func SetupCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// KillProcessGroup signals the process group rooted at the command's
// child.
func KillProcessGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd != nil && cmd.Process != nil {
		return syscall.Kill(-cmd.Process.Pid, sig.(syscall.Signal))
	}
	return nil
}
