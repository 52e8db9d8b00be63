package orchestrator

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultQuiescence is the delay after the last rebuild-finished signal
// before the restart action fires.
const DefaultQuiescence = 500 * time.Millisecond

// Debouncer coalesces bursts of rebuild-finished signals into a single
// delayed restart action.
//
// Each Notify cancels and replaces the pending timer, so the action fires
// at most once per quiescence window of inactivity. A failure inside the
// action is logged and escalated through the failure callback rather than
// left to silently wedge the orchestrator.
type Debouncer struct {
	window time.Duration
	action func() error
	logger *log.Logger

	// onFailure receives the non-zero shutdown status when the action fails.
	onFailure func(status int)

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewDebouncer creates a debouncer around the restart action.
//
// Parameters:
//   - window: The quiescence window; <= 0 uses DefaultQuiescence
//   - action: The restart action to fire after the window elapses
//   - onFailure: Invoked with a non-zero status when the action fails
//   - logger: Logger for action failures
//
// Returns:
//   - *Debouncer: A new debouncer with no pending timer
func NewDebouncer(window time.Duration, action func() error, onFailure func(status int), logger *log.Logger) *Debouncer {
	if window <= 0 {
		window = DefaultQuiescence
	}
	return &Debouncer{
		window:    window,
		action:    action,
		logger:    logger,
		onFailure: onFailure,
	}
}

// Notify signals that a rebuild just finished. Any pending timer is
// cancelled and replaced; the restart action fires once the window elapses
// with no further notifications.
func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.fire(gen)
	})
}

// Cancel discards any pending restart. Firing is suppressed even if the
// timer has already expired and its callback is in flight.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// fire runs the action if the generation token is still current. A timer
// that was superseded between expiry and execution does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	action := d.action
	onFailure := d.onFailure
	d.mu.Unlock()

	if err := action(); err != nil {
		d.logger.Error("restart failed", "error", err)
		if onFailure != nil {
			onFailure(1)
		}
	}
}
