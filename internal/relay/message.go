package relay

import "encoding/json"

// Message is the JSON schema for all websocket traffic between a peer and
// the relay. Signal fields are carried flat so the relay can forward them
// to the other room occupant unchanged.
type Message struct {
	Type string `json:"type"`

	// Code names a room: set by clients on join, by the relay on
	// created/joined replies.
	Code string `json:"code,omitempty"`

	// Text carries the human-readable reason on error replies.
	Text string `json:"message,omitempty"`

	// Connection-negotiation payload, opaque to the relay.
	SignalType string          `json:"signal_type,omitempty"`
	SDP        string          `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`

	// client is the connection that sent the message. Internal to the
	// hub, never serialized.
	client *Client `json:"-"`
}

// Client to relay message types.
const (
	TypeCreate = "create"
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypeSignal = "signal"
)

// Relay to client message types.
const (
	TypeCreated    = "created"
	TypeJoined     = "joined"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypeError      = "error"
)
