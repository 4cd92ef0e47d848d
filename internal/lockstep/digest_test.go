package lockstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigestEqualStates(t *testing.T) {
	state := []byte("serialized board state")

	a := Digest(7, state)
	b := Digest(7, append([]byte(nil), state...))

	assert.True(t, a.Equal(b))
	assert.Equal(t, uint64(7), a.TurnIndex)
}

func TestDigestDifferentStates(t *testing.T) {
	a := Digest(7, []byte("board with knight on e4"))
	b := Digest(7, []byte("board with knight on e5"))

	assert.False(t, a.Equal(b))
}

func TestDigestTurnIndexMatters(t *testing.T) {
	state := []byte("same bytes")

	a := Digest(3, state)
	b := Digest(4, state)

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestDigestEmptyState(t *testing.T) {
	a := Digest(0, nil)
	b := Digest(0, []byte{})

	assert.True(t, a.Equal(b))
}
