package protocol

import (
	"errors"
	"fmt"
)

// ErrSequenceGap indicates a received message whose sequence number is not
// exactly one past the previous message from that sender. The transport
// guarantees ordered exactly-once delivery, so a gap or duplicate means the
// peers disagree about the protocol itself, not that a packet was lost.
var ErrSequenceGap = errors.New("sequence gap")

// Sequencer tracks the outbound counter for one sender and validates the
// inbound counter of its peer. A fresh connection starts a fresh sequence
// space; sequence numbers never survive a reconnect.
type Sequencer struct {
	nextOut  uint64
	lastSeen uint64
}

// Next returns the sequence number for the next outbound message.
func (s *Sequencer) Next() uint64 {
	s.nextOut++
	return s.nextOut
}

// Verify checks an inbound sequence number and records it.
func (s *Sequencer) Verify(seq uint64) error {
	if seq != s.lastSeen+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, seq, s.lastSeen+1)
	}
	s.lastSeen = seq
	return nil
}
