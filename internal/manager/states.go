package manager

// State is the orchestrator's connection state. Exactly one value holds at a
// time; transitions publish a change notification.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Lifecycle notification topics published on the bus. Domain events received
// from the transport are republished under their own event names.
const (
	TopicConnected    = "connected"
	TopicDisconnected = "disconnected"
	TopicReconnected  = "reconnected"
	TopicStateChanged = "connection_state_changed"
	TopicError        = "error"
	TopicAuthFailed   = "authentication_failed"
)

// StateChange is the payload published on TopicStateChanged.
type StateChange struct {
	From State
	To   State
}
