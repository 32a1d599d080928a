package zmq

// State is the adapter's position in its connection lifecycle
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSending
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// StateListener receives state change notifications. Calls are made on a
// separate goroutine and may arrive out of order under heavy churn.
type StateListener interface {
	OnStateChange(from, to State)
}

// StateListenerFunc adapts a function to StateListener
type StateListenerFunc func(from, to State)

// OnStateChange implements StateListener
func (f StateListenerFunc) OnStateChange(from, to State) {
	f(from, to)
}
