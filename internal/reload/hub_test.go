package reload

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial = %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Broadcast(Message{Type: "reload", Target: "renderer"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON = %v", err)
	}
	if msg.Type != "reload" {
		t.Fatalf("type = %q, want %q", msg.Type, "reload")
	}
	if msg.Target != "renderer" {
		t.Fatalf("target = %q, want %q", msg.Target, "renderer")
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	c1 := dialHub(t, ts)
	defer c1.Close()
	c2 := dialHub(t, ts)
	defer c2.Close()
	waitForClients(t, hub, 2)

	hub.Close()
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("client count after Close = %d, want 0", got)
	}
}
