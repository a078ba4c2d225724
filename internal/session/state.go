package session

// State is the recording session lifecycle state.
//
// Transitions:
//
//	Idle → Starting → Active → Stopping → Finalized
//
// plus a terminal Failed reachable from any non-terminal state.
type State int

const (
	// StateIdle: created, not started.
	StateIdle State = iota
	// StateStarting: producers launching, waiting for the first frame.
	StateStarting
	// StateActive: frames flowing into the writer.
	StateActive
	// StateStopping: producers stopped, writer finalizing.
	StateStopping
	// StateFinalized: terminal; the artifact path is available.
	StateFinalized
	// StateFailed: terminal; the error is available, no artifact exists.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateFinalized || s == StateFailed
}
