// internal/tracker/state.go
package tracker

// State is the phase the scheduler is in.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDetecting
	StatePersisting
	StateNotifying
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDetecting:
		return "detecting"
	case StatePersisting:
		return "persisting"
	case StateNotifying:
		return "notifying"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
