package realtime

// State is the public connection state. Exactly one state is active at any
// time and transitions are the only way to change it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// connEvent is an input to the connection state machine.
type connEvent int

const (
	evConnect        connEvent = iota // Connect() accepted, dial starting
	evOpen                            // socket opened
	evAuthenticated                   // handshake succeeded
	evAuthFailed                      // server rejected the token
	evTransportError                  // socket-level error; informational, a close follows
	evCleanClose                      // normal-closure code or local Disconnect
	evAbnormalClose                   // any other close, reconnect-eligible
)

// nextState is the pure transition function of the connection state machine.
// authRequired selects the open path: with a token the socket stays in
// StateConnecting until the handshake completes.
func nextState(cur State, ev connEvent, authRequired bool) State {
	switch ev {
	case evConnect:
		return StateConnecting
	case evOpen:
		if authRequired {
			return StateConnecting
		}
		return StateConnected
	case evAuthenticated:
		return StateConnected
	case evAuthFailed, evTransportError:
		return StateError
	case evCleanClose, evAbnormalClose:
		return StateDisconnected
	}
	return cur
}
