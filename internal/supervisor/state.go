// Package supervisor spawns, tracks and terminates the external MPlayer
// and ffprobe processes.
package supervisor

// State represents the lifecycle of a spawned process.
type State int

const (
	// StateStarting indicates the process is being spawned.
	StateStarting State = iota

	// StateRunning indicates the process is alive.
	StateRunning

	// StateKilled indicates a kill was sent and exit has not been reaped yet.
	StateKilled

	// StateExited indicates the process has exited and been reaped.
	StateExited
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateKilled:
		return "killed"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsActive returns true while the process may still accept commands.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning
}

// IsTerminal returns true once the process has been reaped.
func (s State) IsTerminal() bool {
	return s == StateExited
}
