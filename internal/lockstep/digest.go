package lockstep

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// stateDomainKey is the BLAKE3 keyed-hash key for state digests. Domain
// separation keeps state hashes distinct from any other hash of the same
// bytes; the value is the ASCII domain name zero-padded to 32 bytes so it
// stays readable in hex dumps.
var stateDomainKey = [32]byte{
	's', 'a', 'k', 't', 'r', 'i', 's', '.',
	's', 't', 'a', 't', 'e', 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// StateDigest is a compact fingerprint of the full engine state at a turn
// boundary. Digests are compared by equality only and never persisted.
type StateDigest struct {
	TurnIndex uint64   `msgpack:"turn_index"`
	Hash      [32]byte `msgpack:"hash"`
}

// Digest hashes a serialized engine state. The turn index is mixed into the
// hash so two identical boards at different turns never collide silently.
func Digest(turnIndex uint64, state []byte) StateDigest {
	hasher, err := blake3.NewKeyed(stateDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a wrong key length, which is fixed here.
		panic("lockstep: keyed hasher: " + err.Error())
	}

	var turn [8]byte
	binary.BigEndian.PutUint64(turn[:], turnIndex)
	hasher.Write(turn[:])
	hasher.Write(state)

	d := StateDigest{TurnIndex: turnIndex}
	hasher.Digest().Read(d.Hash[:])
	return d
}

// Equal reports whether two digests describe the same state at the same turn.
func (d StateDigest) Equal(other StateDigest) bool {
	return d.TurnIndex == other.TurnIndex && d.Hash == other.Hash
}

// String returns a short hash prefix for log lines.
func (d StateDigest) String() string {
	return hex.EncodeToString(d.Hash[:6])
}
