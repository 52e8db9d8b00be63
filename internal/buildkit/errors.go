package buildkit

import (
	"fmt"
	"strings"
)

// stderrTailLines caps how much captured stderr a BuildError carries.
const stderrTailLines = 20

// BuildError represents a failed build of a single target.
type BuildError struct {
	// Target is the name of the target that failed to build.
	Target string

	// Output is the tail of the build's stderr, for diagnostics.
	Output string

	// Err is the underlying process error.
	Err error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("build of %q failed: %v\n%s", e.Target, e.Err, e.Output)
	}
	return fmt.Sprintf("build of %q failed: %v", e.Target, e.Err)
}

// Unwrap returns the underlying process error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// tail returns the last n lines of captured output.
func tail(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
