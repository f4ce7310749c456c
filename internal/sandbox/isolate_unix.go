//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// isolate starts the script in its own process group and makes context
// cancellation kill the whole group, not just the interpreter.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
