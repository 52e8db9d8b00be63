// Package orchestrator implements the dev-loop orchestration core.
//
// It coordinates watch-mode builds of every background target, debounces
// their completions into a single restart decision, and supervises the
// external app process that consumes the build output — restarting it
// exactly when the right subset of targets has finished rebuilding,
// without disrupting the separately-served hot-reloading target.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/usrz/devws/internal/config"
)

// SessionState describes where a dev session is in its lifecycle.
type SessionState string

const (
	// SessionUninitialized means Init has not been called.
	SessionUninitialized SessionState = "uninitialized"

	// SessionInitializing means background watches are coming up.
	SessionInitializing SessionState = "initializing"

	// SessionServing means every background target reached its first build
	// and the session is ready for (or already) serving.
	SessionServing SessionState = "serving"

	// SessionClosing means teardown is in progress.
	SessionClosing SessionState = "closing"

	// SessionClosed means teardown finished.
	SessionClosed SessionState = "closed"
)

// ServingServer is the hosting server exposing the served target over a
// live, hot-reloading connection.
type ServingServer interface {
	// URL returns the fully-resolved URL of the accepting socket, or ""
	// when the server is not listening.
	URL() string

	// Close shuts the serving socket down.
	Close() error
}

// Environment creates dev sessions. The concrete orchestrator is one
// variant; hosting dev servers depend only on this capability.
type Environment interface {
	// CreateSession builds a session for the named project, bound to the
	// given configuration and build backend watch entry point.
	CreateSession(name string, cfg *config.ProjectConfig, startWatch StartWatchFunc) (*Session, error)
}

// Session is the long-lived aggregate root bound to the served target.
//
// It owns one Watch Aggregator / Process Supervisor pair joined by a
// Restart Debouncer. A session is superseded, not mutated, when the
// hosting server recycles sessions: Init on the replacement stops the
// previous session's process and watches first.
type Session struct {
	name   string
	id     string
	cfg    *config.ProjectConfig
	logger *log.Logger

	agg *Aggregator
	sup *Supervisor
	deb *Debouncer

	mu         sync.Mutex
	state      SessionState
	srv        ServingServer
	exitStatus int

	done     chan struct{}
	doneOnce sync.Once
}

// DevEnvironment is the concrete orchestrator Environment.
type DevEnvironment struct {
	logger *log.Logger
}

// NewDevEnvironment creates the orchestrator environment.
//
// Parameters:
//   - logger: Root logger; sessions derive their own from it
//
// Returns:
//   - *DevEnvironment: A new environment
func NewDevEnvironment(logger *log.Logger) *DevEnvironment {
	return &DevEnvironment{logger: logger}
}

// CreateSession builds an uninitialized session with its aggregator →
// debouncer → supervisor chain wired together.
//
// Parameters:
//   - name: Session name, used for logging
//   - cfg: The validated project configuration
//   - startWatch: The build backend's watch entry point
//
// Returns:
//   - *Session: The new session, in the uninitialized state
//   - error: If the configuration is unusable
func (e *DevEnvironment) CreateSession(name string, cfg *config.ProjectConfig, startWatch StartWatchFunc) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()[:8]
	logger := e.logger.With("session", id)

	s := &Session{
		name:   name,
		id:     id,
		cfg:    cfg,
		logger: logger,
		state:  SessionUninitialized,
		done:   make(chan struct{}),
	}

	s.sup = NewSupervisor(cfg.App.Command, cfg.App.Args, logger.With("process", cfg.App.Command))
	s.sup.SetShutdownCallback(s.shutdown)
	s.deb = NewDebouncer(time.Duration(cfg.Dev.DebounceMs)*time.Millisecond, s.restart, s.shutdown, logger)
	s.agg = NewAggregator(cfg.Targets, startWatch, logger)

	return s, nil
}

// ID returns the session's correlation id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitStatus returns the status the hosting process should exit with.
func (s *Session) ExitStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitStatus
}

// Done returns a channel closed when the session has shut down, either
// through Close or through an app process exit directive.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Init brings the session up: every background target is built to its
// first completed build and kept under watch, with rebuild completions
// feeding the restart debouncer.
//
// When prev is non-nil the hosting server is recycling sessions (e.g. the
// orchestration configuration was edited): the previous session's process
// and watches are stopped first. Its serving socket is left for the
// hosting server to close separately.
//
// Parameters:
//   - ctx: Context bounding the watches' lifetime
//   - prev: The session being superseded, or nil
//
// Returns:
//   - error: If any target's first build fails; the session then never
//     reaches the serving state and no process is spawned
func (s *Session) Init(ctx context.Context, prev *Session) error {
	if prev != nil {
		prev.stopOrchestration()
	}

	s.mu.Lock()
	if s.state != SessionUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session already initialized (state %s)", state)
	}
	s.state = SessionInitializing
	s.mu.Unlock()

	served := s.cfg.ServedTarget().Name
	if err := s.agg.Start(ctx, served, s.deb.Notify); err != nil {
		s.mu.Lock()
		s.state = SessionClosed
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = SessionServing
	s.mu.Unlock()
	s.logger.Info("background targets ready")
	return nil
}

// Listen records the hosting server's serve URL and performs the first app
// process start. The server must already be accepting connections.
//
// If the first start fails the session cannot usefully continue: the
// server reference is cleared, the exit status is set non-zero, and the
// hosting server is closed.
//
// Parameters:
//   - srv: The hosting server, already listening
//
// Returns:
//   - error: If the server is not accepting, or spawning fails
func (s *Session) Listen(srv ServingServer) error {
	if srv == nil {
		return fmt.Errorf("serving server is required")
	}
	url := srv.URL()
	if url == "" {
		return fmt.Errorf("serving server is not accepting connections")
	}

	s.mu.Lock()
	if s.state != SessionServing {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session is not ready to serve (state %s)", state)
	}
	s.srv = srv
	s.mu.Unlock()

	if err := s.sup.Start(url); err != nil {
		s.mu.Lock()
		s.srv = nil
		s.exitStatus = 1
		s.mu.Unlock()
		if cerr := srv.Close(); cerr != nil {
			s.logger.Warn("failed to close serving server", "error", cerr)
		}
		return err
	}

	s.logger.Info("app process serving", "url", url)
	return nil
}

// Close tears the session down: serving reference first (so in-flight exit
// handlers no longer attempt restarts), then the app process, then the
// watches. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = SessionClosing
	s.srv = nil
	s.mu.Unlock()

	s.stopOrchestration()

	s.mu.Lock()
	s.state = SessionClosed
	s.mu.Unlock()
	s.signalDone()
	return nil
}

// stopOrchestration stops the process, then the watches. Used both for the
// session's own teardown and when a replacement session supersedes it.
func (s *Session) stopOrchestration() {
	s.deb.Cancel()
	if err := s.sup.Stop(); err != nil {
		s.logger.Warn("failed to stop app process", "error", err)
	}
	s.agg.Stop()
}

// restart is the debounced restart action: stop-then-start the app process
// against the recorded serve URL. With no server recorded (not listening
// yet, or already closing) there is nothing to restart into.
func (s *Session) restart() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	url := srv.URL()
	if url == "" {
		return nil
	}
	s.logger.Info("rebuild finished, restarting app process")
	return s.sup.Start(url)
}

// shutdown handles a shutdown directive from the supervisor or the
// debouncer: record the exit status, close the hosting server, and signal
// completion. Directives arriving during teardown are ignored.
func (s *Session) shutdown(status int) {
	s.mu.Lock()
	srv := s.srv
	if srv == nil {
		s.mu.Unlock()
		return
	}
	s.srv = nil
	s.exitStatus = status
	s.mu.Unlock()

	if status == 0 {
		s.logger.Info("app process quit, ending dev session")
	} else {
		s.logger.Error("app process failed, ending dev session", "status", status)
	}
	if err := srv.Close(); err != nil {
		s.logger.Warn("failed to close serving server", "error", err)
	}
	s.signalDone()
}

func (s *Session) signalDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
