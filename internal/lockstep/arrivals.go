// Package lockstep keeps two independently running game copies convergent:
// a shared seeded generator produces identical piece-arrival streams on both
// peers without sending arrivals over the wire, and compact state digests
// detect divergence cheaply after every turn.
package lockstep

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Draw is one result from the shared arrival stream. Index is the position
// in the stream (starting at 0), Kind selects the arriving piece kind.
type Draw struct {
	Index uint64 `msgpack:"index"`
	Kind  int    `msgpack:"kind"`
}

// Arrivals is a deterministic piece-arrival stream. Two Arrivals built from
// the same seed and kind count yield identical draws in identical order, so
// each peer advances its own copy at the same turn boundary instead of
// trusting the network for every arrival event.
type Arrivals struct {
	rng   *rand.Rand
	seed  int64
	kinds int
	next  uint64
}

// NewArrivals creates an arrival stream for the given shared seed.
// kinds is the number of distinct piece kinds to draw from and must be
// positive.
func NewArrivals(seed int64, kinds int) *Arrivals {
	if kinds <= 0 {
		panic(fmt.Sprintf("lockstep: invalid kind count %d", kinds))
	}
	return &Arrivals{
		rng:   rand.New(rand.NewSource(seed)),
		seed:  seed,
		kinds: kinds,
	}
}

// Seek repositions the stream so that exactly drawn draws have been taken,
// as if Next had been called that many times on a fresh stream. Seeking
// backwards rebuilds the generator from the seed, so the stream stays
// bitwise-identical to an uninterrupted one.
func (a *Arrivals) Seek(drawn uint64) {
	if drawn < a.next {
		a.rng = rand.New(rand.NewSource(a.seed))
		a.next = 0
	}
	for a.next < drawn {
		a.Next()
	}
}

// Next advances the stream and returns the next draw.
func (a *Arrivals) Next() Draw {
	d := Draw{
		Index: a.next,
		Kind:  a.rng.Intn(a.kinds),
	}
	a.next++
	return d
}

// Drawn reports how many draws have been taken from the stream.
func (a *Arrivals) Drawn() uint64 {
	return a.next
}

// NewSeed generates a session seed using crypto/rand. The Host calls this
// once per session and transmits the result to the Guest.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
