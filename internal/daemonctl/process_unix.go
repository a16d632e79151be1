//go:build !windows

package daemonctl

import (
	"fmt"
	"os"
	"syscall"
)

// isProcessAlive reports whether pid names a running process, using the
// standard signal-0 liveness probe.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

// killProcess sends SIGTERM, requesting a graceful shutdown.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal SIGTERM to %d: %w", pid, err)
	}
	return nil
}

// forceKillProcess sends SIGKILL, ending the process unconditionally.
func forceKillProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("signal SIGKILL to %d: %w", pid, err)
	}
	return nil
}
