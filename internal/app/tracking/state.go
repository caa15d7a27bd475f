package tracking

// State is the lifecycle state of a progress observation.
type State int32

const (
	// StateIdle means nothing is being observed, either because tracking never
	// started or because the observation was cancelled.
	StateIdle State = iota
	// StateObserving means progress events are being received.
	StateObserving
	// StateCompleted means the task completed and the completion handler ran.
	StateCompleted
	// StateFailed means the task or its progress channel failed and the error
	// handler ran.
	StateFailed
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateObserving:
		return "OBSERVING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the observation has finished on its own.
func (s State) IsTerminal() bool { return s == StateCompleted || s == StateFailed }

// outcome labels a finished observation in metrics and logs.
type outcome string

const (
	outcomeCompleted   outcome = "completed"
	outcomeFailed      outcome = "failed"
	outcomeIdleTimeout outcome = "idle_timeout"
	outcomeCancelled   outcome = "cancelled"
)
