package buildkit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/usrz/devws/internal/config"
)

// batchWindow is how long the watcher collects filesystem events before
// triggering a rebuild, so that many files changing at once (editor saves,
// branch switches) produce one build cycle instead of one per file.
const batchWindow = 250 * time.Millisecond

// WatchState describes the lifecycle state of a watch-mode build.
type WatchState string

const (
	// WatchStarting means the first build has not completed yet.
	WatchStarting WatchState = "starting"

	// WatchReady means the last build completed successfully.
	WatchReady WatchState = "ready"

	// WatchRunning means a build cycle is in flight.
	WatchRunning WatchState = "running"

	// WatchErrored means the last build failed.
	WatchErrored WatchState = "errored"

	// WatchStopped means the watch has been torn down.
	WatchStopped WatchState = "stopped"
)

// Kit is the build backend: it runs one-shot builds and starts watch-mode
// builds for project targets.
type Kit struct {
	runner *Runner
	logger *log.Logger
}

// NewKit creates a build backend.
//
// Parameters:
//   - logger: Logger for build output and watcher diagnostics
//
// Returns:
//   - *Kit: A new build backend
func NewKit(logger *log.Logger) *Kit {
	return &Kit{
		runner: NewRunner(),
		logger: logger,
	}
}

// Build runs a single build of the target, streaming output at debug level.
//
// Parameters:
//   - ctx: Context for cancellation
//   - target: The target to build
//
// Returns:
//   - error: A *BuildError on failure
func (k *Kit) Build(ctx context.Context, target config.TargetConfig) error {
	logger := k.logger.With("target", target.Name)
	return k.runner.Run(ctx, target, func(line string) {
		logger.Debug(line)
	})
}

// StartWatch begins a watch-mode build for the target.
//
// The first build starts immediately. Afterwards, filesystem changes under
// the target's source directories re-trigger builds, batched per
// batchWindow. Lifecycle events for every cycle are delivered on the
// returned handle's Events channel.
//
// Parameters:
//   - ctx: Context bounding the watch's lifetime
//   - target: The target to watch
//
// Returns:
//   - *WatchHandle: The active watch
//   - error: Any error setting up the filesystem watcher
func (k *Kit) StartWatch(ctx context.Context, target config.TargetConfig) (*WatchHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher for %q: %w", target.Name, err)
	}

	for _, root := range target.Sources {
		if err := addRecursive(watcher, root); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch sources of %q: %w", target.Name, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &WatchHandle{
		target:  target,
		runner:  k.runner,
		logger:  k.logger.With("target", target.Name),
		watcher: watcher,
		events:  make(chan Event, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   WatchStarting,
	}
	go h.loop(ctx)
	return h, nil
}

// addRecursive registers root and every directory beneath it.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// WatchHandle represents one active watch-mode build for a target.
//
// A handle is owned exclusively by the component that started it; Stop
// tears down the filesystem watcher, kills any in-flight build, and closes
// the Events channel.
type WatchHandle struct {
	target  config.TargetConfig
	runner  *Runner
	logger  *log.Logger
	watcher *fsnotify.Watcher
	events  chan Event
	cancel  context.CancelFunc

	stopOnce sync.Once
	done     chan struct{}

	mu    sync.Mutex
	state WatchState
}

// Events returns the build lifecycle event stream. The channel is closed
// when the watch stops.
func (h *WatchHandle) Events() <-chan Event {
	return h.events
}

// Target returns the name of the watched target.
func (h *WatchHandle) Target() string {
	return h.target.Name
}

// State returns the current watch state.
func (h *WatchHandle) State() WatchState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *WatchHandle) setState(s WatchState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Stop terminates the watch and any in-flight build. It is idempotent and
// blocks until the event loop has exited.
func (h *WatchHandle) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		h.watcher.Close()
	})
	<-h.done
}

// loop is the watch event loop: first build, then batched rebuilds.
func (h *WatchHandle) loop(ctx context.Context) {
	defer close(h.done)
	defer close(h.events)

	h.runBuild(ctx)

	var batch *time.Timer
	var batchC <-chan time.Time
	defer func() {
		if batch != nil {
			batch.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.setState(WatchStopped)
			return

		case ev, ok := <-h.watcher.Events:
			if !ok {
				h.setState(WatchStopped)
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories need explicit registration.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := h.watcher.Add(ev.Name); err != nil {
						h.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if batch != nil {
				batch.Stop()
			}
			batch = time.NewTimer(batchWindow)
			batchC = batch.C

		case err, ok := <-h.watcher.Errors:
			if !ok {
				h.setState(WatchStopped)
				return
			}
			h.logger.Warn("watcher error", "error", err)

		case <-batchC:
			batch = nil
			batchC = nil
			h.runBuild(ctx)
		}
	}
}

// runBuild executes one build cycle and emits its lifecycle events.
func (h *WatchHandle) runBuild(ctx context.Context) {
	h.emit(ctx, Event{Kind: EventBuildStart, Target: h.target.Name})
	h.setState(WatchRunning)

	err := h.runner.Run(ctx, h.target, func(line string) {
		h.logger.Debug(line)
	})
	if ctx.Err() != nil {
		h.setState(WatchStopped)
		return
	}
	if err != nil {
		h.setState(WatchErrored)
		h.emit(ctx, Event{Kind: EventBuildError, Target: h.target.Name, Err: err})
		return
	}
	h.setState(WatchReady)
	h.emit(ctx, Event{Kind: EventBuildSuccess, Target: h.target.Name})
}

// emit delivers an event unless the watch is shutting down.
func (h *WatchHandle) emit(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}
