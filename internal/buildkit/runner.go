package buildkit

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/usrz/devws/internal/config"
)

// Runner executes build commands for project targets.
type Runner struct {
	// env holds extra environment variables appended to every build.
	env []string
}

// NewRunner creates a new build runner.
//
// Returns:
//   - *Runner: A new Runner instance
func NewRunner() *Runner {
	return &Runner{}
}

// SetEnv sets extra environment variables appended to every build command.
func (r *Runner) SetEnv(env []string) {
	r.env = env
}

// Run executes a target's build command and streams output to the callback.
//
// The command is executed via /bin/sh -c to support shell features like
// pipes and redirects, in the target's first source directory when set.
//
// Parameters:
//   - ctx: Context for cancellation; cancelling kills the build process
//   - target: The target to build
//   - onOutput: Callback invoked per output line (may be nil)
//
// Returns:
//   - error: A *BuildError if the build failed, nil otherwise
func (r *Runner) Run(ctx context.Context, target config.TargetConfig, onOutput func(line string)) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", target.Build)
	if len(target.Sources) > 0 {
		cmd.Dir = target.Sources[0]
	}
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &BuildError{Target: target.Name, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
	}()

	// Stream stderr and capture the tail for error reporting.
	var stderrLines []string
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			stderrLines = append(stderrLines, line)
			if onOutput != nil {
				onOutput(line)
			}
		}
	}()

	// Drain both streams first; Wait closes the pipes and would truncate
	// the captured tail.
	wg.Wait()
	cmdErr := cmd.Wait()

	if cmdErr != nil {
		return &BuildError{
			Target: target.Name,
			Output: tail(stderrLines, stderrTailLines),
			Err:    cmdErr,
		}
	}
	return nil
}
