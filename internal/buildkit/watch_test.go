package buildkit

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/usrz/devws/internal/config"
)

func nextEvent(t *testing.T, h *WatchHandle, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev, ok := <-h.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a build event")
	}
	return Event{}
}

func TestStartWatchRunsFirstBuild(t *testing.T) {
	dir := t.TempDir()
	kit := NewKit(log.New(io.Discard))
	target := config.TargetConfig{Name: "demo", Sources: []string{dir}, Build: "true"}

	h, err := kit.StartWatch(context.Background(), target)
	if err != nil {
		t.Fatalf("StartWatch = %v", err)
	}
	defer h.Stop()

	if ev := nextEvent(t, h, 5*time.Second); ev.Kind != EventBuildStart {
		t.Fatalf("first event = %v, want %v", ev.Kind, EventBuildStart)
	}
	if ev := nextEvent(t, h, 5*time.Second); ev.Kind != EventBuildSuccess {
		t.Fatalf("second event = %v, want %v", ev.Kind, EventBuildSuccess)
	}
	if got := h.State(); got != WatchReady {
		t.Fatalf("state = %q, want %q", got, WatchReady)
	}
}

func TestWatchRebuildsOnSourceChange(t *testing.T) {
	dir := t.TempDir()
	kit := NewKit(log.New(io.Discard))
	target := config.TargetConfig{Name: "demo", Sources: []string{dir}, Build: "true"}

	h, err := kit.StartWatch(context.Background(), target)
	if err != nil {
		t.Fatalf("StartWatch = %v", err)
	}
	defer h.Stop()

	// Consume the first cycle.
	nextEvent(t, h, 5*time.Second)
	nextEvent(t, h, 5*time.Second)

	if err := os.WriteFile(filepath.Join(dir, "main.src"), []byte("changed"), 0o644); err != nil {
		t.Fatalf("WriteFile = %v", err)
	}

	if ev := nextEvent(t, h, 5*time.Second); ev.Kind != EventBuildStart {
		t.Fatalf("event after change = %v, want %v", ev.Kind, EventBuildStart)
	}
	if ev := nextEvent(t, h, 5*time.Second); ev.Kind != EventBuildSuccess {
		t.Fatalf("terminal event after change = %v, want %v", ev.Kind, EventBuildSuccess)
	}
}

func TestWatchEmitsBuildErrors(t *testing.T) {
	dir := t.TempDir()
	kit := NewKit(log.New(io.Discard))
	target := config.TargetConfig{Name: "demo", Sources: []string{dir}, Build: "exit 3"}

	h, err := kit.StartWatch(context.Background(), target)
	if err != nil {
		t.Fatalf("StartWatch = %v", err)
	}
	defer h.Stop()

	nextEvent(t, h, 5*time.Second) // build-start
	ev := nextEvent(t, h, 5*time.Second)
	if ev.Kind != EventBuildError {
		t.Fatalf("terminal event = %v, want %v", ev.Kind, EventBuildError)
	}
	if ev.Err == nil {
		t.Fatal("build-error event carries no error")
	}
	if got := h.State(); got != WatchErrored {
		t.Fatalf("state = %q, want %q", got, WatchErrored)
	}
}

func TestWatchStopClosesEventStream(t *testing.T) {
	dir := t.TempDir()
	kit := NewKit(log.New(io.Discard))
	target := config.TargetConfig{Name: "demo", Sources: []string{dir}, Build: "true"}

	h, err := kit.StartWatch(context.Background(), target)
	if err != nil {
		t.Fatalf("StartWatch = %v", err)
	}

	nextEvent(t, h, 5*time.Second)
	nextEvent(t, h, 5*time.Second)

	h.Stop()
	h.Stop() // idempotent

	select {
	case _, ok := <-h.Events():
		if ok {
			// A batched rebuild may have been in flight; drain to close.
			for range h.Events() {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel not closed after Stop")
	}
}

func TestStartWatchFailsOnMissingSources(t *testing.T) {
	kit := NewKit(log.New(io.Discard))
	target := config.TargetConfig{
		Name:    "demo",
		Sources: []string{"/nonexistent/definitely-not-a-dir"},
		Build:   "true",
	}
	if _, err := kit.StartWatch(context.Background(), target); err == nil {
		t.Fatal("expected error watching missing sources")
	}
}
