package reload

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
)

// Server serves the served target's build output and hosts the hot-reload
// websocket endpoint at /ws. It satisfies the orchestrator's ServingServer
// contract: URL reports the accepting socket and Close tears it down.
type Server struct {
	dir    string
	hub    *Hub
	logger *log.Logger

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
	url string
}

// NewServer creates a serving server over the given output directory.
//
// Parameters:
//   - dir: The served target's build output directory
//   - hub: The hot-reload hub mounted at /ws
//   - logger: Logger for serve diagnostics
//
// Returns:
//   - *Server: A new, not yet listening server
func NewServer(dir string, hub *Hub, logger *log.Logger) *Server {
	return &Server{
		dir:    dir,
		hub:    hub,
		logger: logger,
	}
}

// Start binds the listening socket and begins accepting connections.
// Port 0 picks a free port.
//
// Parameters:
//   - host: Interface to bind
//   - port: Port to bind, 0 for ephemeral
//
// Returns:
//   - error: Any error binding the socket
func (s *Server) Start(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return fmt.Errorf("serving server is already listening on %s", s.url)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("failed to bind serving socket: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.Handle("/", http.FileServer(http.Dir(s.dir)))

	s.ln = ln
	s.srv = &http.Server{Handler: mux}
	s.url = fmt.Sprintf("http://%s", ln.Addr().String())

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("serving server failed", "error", err)
		}
	}(s.srv, ln)

	s.logger.Info("serving", "url", s.url, "dir", s.dir)
	return nil
}

// URL returns the fully-resolved serve URL, or "" when not listening.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Close shuts the serving socket down and disconnects reload clients.
// Safe to call repeatedly.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.url = ""
	s.mu.Unlock()

	s.hub.Close()
	if srv == nil {
		return nil
	}
	return srv.Close()
}
