//go:build unix

package tools

import (
	"os/exec"
	"syscall"
)

// isolateProcessGroup puts the shell in its own group so a timeout kills
// every child it spawned, not just the shell.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
