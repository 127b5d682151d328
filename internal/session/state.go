package session

// State is the lifecycle state of the session slot.
type State int

const (
	// Unauthenticated means no credential is held.
	Unauthenticated State = iota
	// Authenticated means the access token is valid beyond the safety margin.
	Authenticated
	// Expiring means the access token is inside the safety margin or expired.
	Expiring
	// Refreshing means a refresh call is in flight.
	Refreshing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Expiring:
		return "expiring"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}
