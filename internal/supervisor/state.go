// Package supervisor manages the lifecycle of individual launched processes.
package supervisor

// State represents the current state of a supervised process.
type State int

const (
	// StateCreated is the initial state before the process has started.
	StateCreated State = iota

	// StateStarting indicates the process is being spawned.
	StateStarting

	// StateRunning indicates the process is running.
	StateRunning

	// StateBackoff indicates a respawning process is waiting to restart.
	StateBackoff

	// StateStopped indicates the supervisor has finished.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive reports whether the process is running or about to run.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateBackoff
}

// IsTerminal reports whether the supervisor has finished.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
