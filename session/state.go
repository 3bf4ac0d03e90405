package session

// State is the refresh state machine of the controller.
type State int32

const (
	StateNormal          State = iota // No refresh running
	StateRefreshInFlight              // A refresh exchange is running; new failures join it
	StateFailed                       // A refresh failed; held while the session is cleared, then back to Normal
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateRefreshInFlight:
		return "refresh_in_flight"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
