//go:build windows

package orchestrator

import (
	"os"
)

// terminate requests termination of the process. Windows has no SIGTERM
// equivalent for arbitrary processes, so this kills outright.
func terminate(p *os.Process) error {
	return p.Kill()
}

// exitSignaled reports whether the process was killed by a signal.
// Windows reports killed processes through the exit code instead.
func exitSignaled(ps *os.ProcessState) bool {
	return false
}
