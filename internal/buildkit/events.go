// Package buildkit provides build execution for project targets, both as
// one-shot builds and as long-running watch-mode builds that re-trigger on
// source changes and emit lifecycle events per build cycle.
package buildkit

// EventKind identifies a build lifecycle event.
type EventKind int

const (
	// EventBuildStart signals that a build cycle has begun.
	EventBuildStart EventKind = iota

	// EventBuildSuccess signals that a build cycle completed successfully.
	EventBuildSuccess

	// EventBuildError signals that a build cycle failed. Err carries the cause.
	EventBuildError
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventBuildStart:
		return "build-start"
	case EventBuildSuccess:
		return "build-success"
	case EventBuildError:
		return "build-error"
	default:
		return "unknown"
	}
}

// Event is one build lifecycle event emitted by a watch.
type Event struct {
	// Kind is the lifecycle event kind.
	Kind EventKind

	// Target is the name of the target the event belongs to.
	Target string

	// Err is set for EventBuildError.
	Err error
}

// Terminal reports whether the event ends a build cycle.
func (e Event) Terminal() bool {
	return e.Kind == EventBuildSuccess || e.Kind == EventBuildError
}
