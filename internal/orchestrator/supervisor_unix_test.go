//go:build !windows

package orchestrator

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// livePIDs counts how many of the PIDs recorded in marker are still alive.
func livePIDs(t *testing.T, marker string) int {
	t.Helper()
	data, err := os.ReadFile(marker)
	if err != nil {
		return 0
	}
	live := 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			t.Fatalf("bad pid line %q", line)
		}
		if syscall.Kill(pid, 0) == nil {
			live++
		}
	}
	return live
}

func waitForLivePIDs(t *testing.T, marker string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for livePIDs(t, marker) != want {
		if time.Now().After(deadline) {
			t.Fatalf("live processes = %d, want %d", livePIDs(t, marker), want)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSupervisorConcurrentStartKeepsOneProcess(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "pids.log")
	script := "echo $$ >> " + marker + "; exec sleep 60"
	s := NewSupervisor("sh", []string{"-c", script}, log.New(io.Discard))

	release := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			errs <- s.Start("http://127.0.0.1:1234")
		}()
	}
	close(release)
	wg.Wait()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Start = %v", err)
		}
	}

	// However the two starts interleave, exactly one process survives.
	waitForLivePIDs(t, marker, 1)
	if got := s.State(); got != ProcRunning {
		t.Fatalf("state = %q, want %q", got, ProcRunning)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	waitForLivePIDs(t, marker, 0)
}
