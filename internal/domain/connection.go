package domain

// ConnectionState is the real-time channel state.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnectionStatus is what the channel publishes on every change.
type ConnectionStatus struct {
	State ConnectionState
	Error string
}
