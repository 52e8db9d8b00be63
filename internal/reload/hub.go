// Package reload provides the serving server for the served target: a
// static file server over the target's build output plus a websocket
// channel that pushes reload notifications to connected clients.
package reload

import (
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Message is one frame pushed to hot-reload clients.
type Message struct {
	// Type is the notification kind, e.g. "reload".
	Type string `json:"type"`

	// Target is the target whose rebuild triggered the notification.
	Target string `json:"target,omitempty"`
}

// Hub tracks connected hot-reload clients and broadcasts to all of them.
type Hub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
//
// Parameters:
//   - logger: Logger for connection diagnostics
//
// Returns:
//   - *Hub: A new hub
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// The dev server is local-only; skip origin checks.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and keeps the connection
// registered until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("reload client connected", "remote", conn.RemoteAddr().String())

	// Drain incoming frames; the read loop ends when the client closes.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes a message to every connected client. Connections that
// fail to accept the write are dropped.
//
// Parameters:
//   - msg: The frame to push
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("dropping reload client", "error", err)
			h.drop(conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for conn := range conns {
		conn.Close()
	}
}

// drop unregisters and closes one connection.
func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}
