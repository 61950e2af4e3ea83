package session

// State is the session's authentication state. There is exactly one
// session per process; transitions are driven by protocol events and the
// controller's own operations.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateConnecting      State = "connecting"
	StateWaitingForGuard State = "waiting-for-guard"
	StateConnected       State = "connected"
	StateError           State = "error"
)

// disconnectReason tags the next disconnect with why it happens. A
// disconnect the controller requested itself (logout, switch, re-login)
// must not trigger automatic reconnection; the tag is consumed by the
// disconnect it covers, so exactly one disconnect is suppressed.
type disconnectReason int

const (
	reasonInvoluntary disconnectReason = iota
	reasonLogout
	reasonSwitch
	reasonRelogin
)
