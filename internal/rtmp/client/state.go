package client

import "fmt"

// StateKind is the RTMP client's connection state machine per spec §4.C2:
// Disconnected -> Connecting -> Connected -> {Reconnecting | Disconnected | Failed}.
type StateKind uint8

const (
	StateDisconnected StateKind = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// ConnectionState is the observable state of a Client, returned by State().
// Attempt is only meaningful in StateReconnecting; Reason only in StateFailed.
type ConnectionState struct {
	Kind    StateKind
	Attempt int
	Reason  string
}

func (s ConnectionState) String() string {
	switch s.Kind {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return fmt.Sprintf("Reconnecting{%d}", s.Attempt)
	case StateFailed:
		return fmt.Sprintf("Failed{%s}", s.Reason)
	default:
		return "Unknown"
	}
}
