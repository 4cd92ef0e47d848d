package signaling

import "encoding/json"

// Message represents all websocket messages between a peer and the relay.
type Message struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
	Text string `json:"message,omitempty"`

	SignalType string          `json:"signal_type,omitempty"`
	SDP        string          `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreate = "create"
	MessageTypeJoin   = "join"
	MessageTypeLeave  = "leave"
	MessageTypeSignal = "signal"

	MessageTypeCreated    = "created"
	MessageTypeJoined     = "joined"
	MessageTypePeerJoined = "peer_joined"
	MessageTypePeerLeft   = "peer_left"
	MessageTypeError      = "error"
)

// SignalPayload is one connection-negotiation blob: an SDP offer/answer or
// an ICE candidate. Candidates may arrive reordered; the offer/answer
// exchange must complete before candidates are meaningful.
type SignalPayload struct {
	Type      string
	SDP       string
	Candidate json.RawMessage
}
