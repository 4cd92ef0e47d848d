package session

// State is the connection lifecycle of one peer's session.
type State int

const (
	// Idle: no room requested yet.
	Idle State = iota

	// AwaitingRoom: create or join sent, waiting for the relay's reply.
	AwaitingRoom

	// Negotiating: room paired, peer transport negotiation in progress.
	Negotiating

	// Connected: transport up; seed and ready exchange pending.
	Connected

	// Ready: both sides have sent ready.
	Ready

	// Playing: gameplay messages flowing.
	Playing

	// Resyncing: divergence detected, snapshot in flight.
	Resyncing

	// Disconnected: terminal unless the user starts a new session.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRoom:
		return "awaiting-room"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Resyncing:
		return "resyncing"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
