//go:build !windows

package orchestrator

import (
	"os"
	"syscall"
)

// terminate requests graceful termination of the process.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// exitSignaled reports whether the process was killed by a signal.
func exitSignaled(ps *os.ProcessState) bool {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}
