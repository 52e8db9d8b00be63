package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/usrz/devws/internal/buildkit"
	"github.com/usrz/devws/internal/config"
)

// Watch is the aggregator's view of one watch-mode build.
// *buildkit.WatchHandle satisfies it.
type Watch interface {
	// Events returns the build lifecycle event stream. It is closed when
	// the watch stops.
	Events() <-chan buildkit.Event

	// Target returns the watched target's name.
	Target() string

	// Stop terminates the watch.
	Stop()
}

// StartWatchFunc starts a watch-mode build for a target. It decouples the
// aggregator from the concrete build backend.
type StartWatchFunc func(ctx context.Context, target config.TargetConfig) (Watch, error)

// Aggregator coordinates the watch-mode builds of every background target.
//
// Start brings each watch to its first completed build before returning.
// Afterwards a single shared counter tracks builds in flight across all
// targets; each time it returns to zero the all-quiet callback fires, so
// several targets rebuilding together trigger one restart, not one each.
type Aggregator struct {
	targets    []config.TargetConfig
	startWatch StartWatchFunc
	logger     *log.Logger

	mu         sync.Mutex
	watches    []Watch
	active     int
	started    bool
	onAllQuiet func()

	wg sync.WaitGroup
}

// NewAggregator creates an aggregator over the given targets.
//
// Parameters:
//   - targets: All configured targets; the served one is excluded at Start
//   - startWatch: The build backend's watch entry point
//   - logger: Logger for per-target build failures
//
// Returns:
//   - *Aggregator: A new aggregator
func NewAggregator(targets []config.TargetConfig, startWatch StartWatchFunc, logger *log.Logger) *Aggregator {
	return &Aggregator{
		targets:    targets,
		startWatch: startWatch,
		logger:     logger,
	}
}

// Start begins a watch-mode build for every target except excluded and
// waits for each watch's first build cycle to complete, in any order.
//
// If any first build fails, every watch already started is stopped and
// Start returns that build's error: a broken background build must not
// leave the session half-initialized. On success the aggregator keeps
// consuming lifecycle events until Stop.
//
// Parameters:
//   - ctx: Context bounding the watches' lifetime
//   - excluded: Name of the served target, which is not watched here
//   - onAllQuiet: Invoked whenever the count of in-flight builds hits zero
//
// Returns:
//   - error: The first failed first-build, or a startup error
func (a *Aggregator) Start(ctx context.Context, excluded string, onAllQuiet func()) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("watch aggregator is already running")
	}
	a.started = true
	a.onAllQuiet = onAllQuiet
	a.mu.Unlock()

	var watches []Watch
	fail := func(err error) error {
		for _, w := range watches {
			w.Stop()
		}
		a.mu.Lock()
		a.started = false
		a.onAllQuiet = nil
		a.mu.Unlock()
		return err
	}

	for _, t := range a.targets {
		if t.Name == excluded {
			continue
		}
		w, err := a.startWatch(ctx, t)
		if err != nil {
			return fail(err)
		}
		watches = append(watches, w)
	}

	// First builds complete in any relative order; readiness waits for all
	// of them but returns on the first error without waiting for siblings
	// still building. The channel is buffered so stragglers never block.
	errs := make(chan error, len(watches))
	for _, w := range watches {
		go func(w Watch) {
			errs <- awaitFirstBuild(w)
		}(w)
	}
	for range watches {
		if err := <-errs; err != nil {
			return fail(err)
		}
	}

	a.mu.Lock()
	a.watches = watches
	a.mu.Unlock()

	for _, w := range watches {
		a.wg.Add(1)
		go a.consume(w)
	}
	return nil
}

// awaitFirstBuild blocks until the watch's first build cycle ends.
func awaitFirstBuild(w Watch) error {
	for ev := range w.Events() {
		if !ev.Terminal() {
			continue
		}
		if ev.Kind == buildkit.EventBuildError {
			return ev.Err
		}
		return nil
	}
	return fmt.Errorf("watch for %q ended before its first build completed", w.Target())
}

// consume feeds one watch's lifecycle events into the shared counter.
//
// Rebuild errors are logged with target attribution but do not stop the
// aggregator; a broken rebuild still counts as quiet once its build-end
// event fires.
func (a *Aggregator) consume(w Watch) {
	defer a.wg.Done()
	for ev := range w.Events() {
		switch ev.Kind {
		case buildkit.EventBuildStart:
			a.mu.Lock()
			a.active++
			a.mu.Unlock()

		case buildkit.EventBuildSuccess, buildkit.EventBuildError:
			if ev.Kind == buildkit.EventBuildError {
				a.logger.Error("rebuild failed", "target", ev.Target, "error", ev.Err)
			}
			a.mu.Lock()
			if a.active > 0 {
				a.active--
			}
			quiet := a.active == 0
			cb := a.onAllQuiet
			a.mu.Unlock()
			if quiet && cb != nil {
				cb()
			}
		}
	}
}

// Active returns the number of builds currently in flight.
func (a *Aggregator) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Stop detaches the event consumers and terminates every managed watch.
// Safe to call when nothing was started, and safe to call repeatedly.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	watches := a.watches
	a.watches = nil
	a.started = false
	a.onAllQuiet = nil
	a.active = 0
	a.mu.Unlock()

	for _, w := range watches {
		w.Stop()
	}
	a.wg.Wait()
}
