//go:build windows

package platform

import "os/exec"

// Terminate returns a cancel hook for cmd. Windows has no SIGTERM so the
// process is killed outright.
func Terminate(cmd *exec.Cmd) func() error {
	return func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}
