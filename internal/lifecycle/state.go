// SPDX-License-Identifier: MPL-2.0

package lifecycle

const (
	// StateNotStarted is the initial state: Start has not been called.
	StateNotStarted State = iota
	// StateStarting means the listener is bound and workers are booting.
	StateStarting
	// StateReady means every worker accepts requests.
	StateReady
	// StateDraining means a termination signal was received and in-flight
	// requests are being finished.
	StateDraining
	// StateStopped is terminal: every worker has exited.
	StateStopped
	// StateFailed is terminal: startup or supervision hit a fatal error.
	StateFailed
)

// State is a lifecycle state.
type State int32

// String returns the state name used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
