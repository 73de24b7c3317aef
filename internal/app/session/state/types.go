// Package state provides session run and lane bookkeeping.
package state

// LoadState represents the load status of a lane.
type LoadState int

const (
	LoadPending LoadState = iota // Not loaded yet
	LoadReady                    // Loaded with at least one item
	LoadEmpty                    // Loaded, nothing passed the filters
	LoadFailed                   // Every source failed
)

// String returns the string representation of the load state.
func (s LoadState) String() string {
	switch s {
	case LoadPending:
		return "pending"
	case LoadReady:
		return "ready"
	case LoadEmpty:
		return "empty"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunOutcome represents how a session run ended.
type RunOutcome int

const (
	OutcomeRunning  RunOutcome = iota // Still in progress
	OutcomeFinished                   // Reached its target count
	OutcomeStopped                    // Stopped before reaching a target
)

// String returns the string representation of the outcome.
func (o RunOutcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeFinished:
		return "finished"
	case OutcomeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
