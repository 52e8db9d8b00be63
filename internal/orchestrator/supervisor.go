package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
)

// ServerURLEnv is the well-known environment variable carrying the
// fully-resolved URL of the served target. The app process reads it to
// locate the live build; when absent or empty it loads from the pre-built
// static artifact instead.
const ServerURLEnv = "DEVWS_SERVER_URL"

// ProcState describes the lifecycle state of the supervised app process.
type ProcState string

const (
	// ProcPending means no process has been started yet.
	ProcPending ProcState = "pending"

	// ProcRunning means the process is alive.
	ProcRunning ProcState = "running"

	// ProcExitedClean means the process exited with code 0.
	ProcExitedClean ProcState = "exited-clean"

	// ProcExitedError means the process exited with a non-zero code.
	ProcExitedError ProcState = "exited-error"

	// ProcKilled means the process was terminated by a signal.
	ProcKilled ProcState = "killed"
)

// directive is the side effect an exit transition asks the session for.
type directive int

const (
	// directiveNone requires no action from the session.
	directiveNone directive = iota

	// directiveShutdown asks the session to shut down with the given status.
	directiveShutdown
)

// transition consumes an observed process exit and produces the next
// process state plus a side-effect directive.
//
// The rules:
//   - killed by signal, or non-zero exit → abnormal: shut down with status 1
//   - zero exit while the supervisor did not ask the process to stop →
//     the user quit the app: shut down gracefully with status 0
//   - any exit following a deliberate Stop (a restart cycle or teardown) →
//     no directive; the supervisor is recycling the process on purpose
func transition(code int, signaled, deliberate bool) (ProcState, directive, int) {
	next := ProcExitedClean
	switch {
	case signaled:
		next = ProcKilled
	case code != 0:
		next = ProcExitedError
	}

	if deliberate {
		return next, directiveNone, 0
	}
	if next == ProcExitedClean {
		return next, directiveShutdown, 0
	}
	return next, directiveShutdown, 1
}

// Supervisor owns zero-or-one live app process instance.
//
// Starting implies stopping any prior process first, so at most one live
// process handle exists at all times. Process stdout is surfaced at warn
// level and stderr at error level so consumer diagnostics stay visible
// without blending into orchestration logs.
type Supervisor struct {
	command string
	args    []string
	logger  *log.Logger

	// onShutdown delivers exit directives to the owning session.
	onShutdown func(status int)

	// startMu serializes stop-then-spawn sequences. Without it two
	// overlapping Start calls could each observe no live process and both
	// spawn, leaving an orphaned second handle.
	startMu sync.Mutex

	mu         sync.Mutex
	cmd        *exec.Cmd
	state      ProcState
	deliberate bool
	waitDone   chan struct{}
}

// NewSupervisor creates a supervisor for the given executable.
//
// Parameters:
//   - command: The executable to spawn
//   - args: Arguments passed verbatim
//   - logger: Logger receiving the process's output streams
//
// Returns:
//   - *Supervisor: A new supervisor, in the pending state
func NewSupervisor(command string, args []string, logger *log.Logger) *Supervisor {
	return &Supervisor{
		command: command,
		args:    args,
		logger:  logger,
		state:   ProcPending,
	}
}

// SetShutdownCallback sets the callback invoked when a process exit
// requires the owning session to shut down. Must be set before Start.
func (s *Supervisor) SetShutdownCallback(fn func(status int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = fn
}

// State returns the current process state.
func (s *Supervisor) State() ProcState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start spawns the app process with the serve URL injected into its
// environment. Any prior process is stopped first and is guaranteed to
// have fully exited before the new one spawns.
//
// Parameters:
//   - servedURL: The URL at which the served target is reachable
//
// Returns:
//   - error: If servedURL is empty or spawning fails
func (s *Supervisor) Start(servedURL string) error {
	if servedURL == "" {
		return fmt.Errorf("serve URL is required to start the app process")
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	// Never hold two live process handles.
	s.stopRunning()

	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.Command(s.command, s.args...)
	cmd.Env = append(os.Environ(), ServerURLEnv+"="+servedURL)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start app process: %w", err)
	}

	s.cmd = cmd
	s.state = ProcRunning
	s.deliberate = false
	done := make(chan struct{})
	s.waitDone = done

	streams := &sync.WaitGroup{}
	streams.Add(2)
	go s.stream(stdout, s.logger.Warn, streams)
	go s.stream(stderr, s.logger.Error, streams)
	go s.wait(cmd, done, streams)

	s.logger.Debug("app process started", "pid", cmd.Process.Pid, "url", servedURL)
	return nil
}

// Stop requests graceful termination of the running process and waits for
// it to fully exit. Stopping when nothing runs is a no-op. Termination is
// best-effort: Stop always returns nil.
func (s *Supervisor) Stop() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.stopRunning()
	return nil
}

// stopRunning terminates the live process, if any, and waits for its exit.
// Callers must hold startMu.
func (s *Supervisor) stopRunning() {
	s.mu.Lock()
	cmd := s.cmd
	if cmd == nil || cmd.Process == nil {
		s.mu.Unlock()
		return
	}
	// Mark the pending exit deliberate before signalling, so the exit
	// handler never treats a supervisor-initiated stop as a user quit.
	s.deliberate = true
	done := s.waitDone
	s.mu.Unlock()

	if err := terminate(cmd.Process); err != nil {
		s.logger.Debug("termination signal failed", "error", err)
	}
	<-done
}

// stream copies line-delimited process output into the logger.
func (s *Supervisor) stream(r io.Reader, emit func(msg any, keyvals ...any), wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

// wait observes process exit, advances the state machine, and delivers the
// resulting directive.
func (s *Supervisor) wait(cmd *exec.Cmd, done chan struct{}, streams *sync.WaitGroup) {
	// Drain both pipes first; Wait closes them and would truncate output.
	streams.Wait()
	err := cmd.Wait()

	code := 0
	signaled := false
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			signaled = exitSignaled(exitErr.ProcessState)
		} else {
			// Wait itself failed; treat as abnormal.
			code = -1
		}
	}

	s.mu.Lock()
	next, dir, status := transition(code, signaled, s.deliberate)
	s.state = next
	if s.cmd == cmd {
		s.cmd = nil
	}
	onShutdown := s.onShutdown
	s.mu.Unlock()
	close(done)

	s.logger.Debug("app process exited", "state", string(next), "code", code, "signaled", signaled)

	if dir == directiveShutdown && onShutdown != nil {
		onShutdown(status)
	}
}
