// Package protocol defines the gameplay wire schema carried over the peer
// transport. Every message is a msgpack envelope with a kind discriminant,
// a per-sender sequence number and a kind-specific payload.
package protocol

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomgun/saktris-game-sub005/internal/lockstep"
)

// Message kinds.
const (
	KindSeed           = "seed"
	KindReady          = "ready"
	KindMove           = "move"
	KindPlace          = "place"
	KindStateCheck     = "state_check"
	KindResyncRequest  = "resync_request"
	KindResyncSnapshot = "resync_snapshot"
	KindResign         = "resign"
	KindLeave          = "leave"
)

// Message is the envelope for all peer-to-peer gameplay traffic. Seq is
// assigned per sender, starts at 1 and increments by exactly one per
// message; the transport already delivers in order, so sequence numbers
// exist for protocol-level gap and duplicate detection only.
type Message struct {
	Kind    string             `msgpack:"kind"`
	Seq     uint64             `msgpack:"seq"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// SeedPayload carries the session RNG seed, Host to Guest, exactly once,
// before any gameplay message.
type SeedPayload struct {
	Seed int64 `msgpack:"seed"`
}

// MovePayload is a piece move applied on the sender's board.
type MovePayload struct {
	From  string `msgpack:"from"`
	To    string `msgpack:"to"`
	Extra string `msgpack:"extra,omitempty"`
}

// PlacePayload is an arrived piece placed onto a square.
type PlacePayload struct {
	PieceKind int    `msgpack:"piece_type"`
	Square    string `msgpack:"square"`
}

// StateCheckPayload is the digest exchanged after every completed turn.
type StateCheckPayload struct {
	Digest lockstep.StateDigest `msgpack:"digest"`
}

// ResyncSnapshotPayload carries the Host's full authoritative state plus
// its arrival-stream position, so the Guest resumes both the board and the
// shared generator from the same point.
type ResyncSnapshotPayload struct {
	State []byte `msgpack:"state"`
	Drawn uint64 `msgpack:"drawn"`
}

// NewMessage builds an envelope with the payload marshaled in place.
func NewMessage(kind string, seq uint64, payload any) (Message, error) {
	m := Message{Kind: kind, Seq: seq}
	if payload != nil {
		b, err := msgpack.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		m.Payload = b
	}
	return m, nil
}

// Encode serializes the envelope for the wire.
func (m Message) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses a wire frame into an envelope.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Kind == "" {
		return Message{}, errors.New("decode message: missing kind")
	}
	return m, nil
}

// DecodePayload decodes the envelope payload into the provided struct.
func (m Message) DecodePayload(v any) error {
	if m.Payload == nil {
		return fmt.Errorf("%s: empty payload", m.Kind)
	}
	return msgpack.Unmarshal(m.Payload, v)
}
