package websocket

// State represents the current state of the connection.
type State int

const (
	// StateDisconnected means no transport is open and no retry is scheduled.
	StateDisconnected State = iota

	// StateConnecting means the initial dial is in progress.
	StateConnecting

	// StateConnected means the transport is open and the client is ready.
	StateConnected

	// StateReconnecting means the client is retrying after an unexpected drop.
	StateReconnecting

	// StateDisconnecting means an explicit disconnect is tearing the transport down.
	StateDisconnecting
)

// String returns the string representation of a State.
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
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// StateChange is the payload of a stateChange event.
type StateChange struct {
	Old State
	New State
}
