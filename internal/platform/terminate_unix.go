//go:build !windows

package platform

import (
	"os/exec"
	"syscall"
)

// Terminate returns a cancel hook that asks the process to exit politely.
func Terminate(cmd *exec.Cmd) func() error {
	return func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
}
