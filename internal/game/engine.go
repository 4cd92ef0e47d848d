// Package game defines the contract between the network core and the local
// rule engine, plus a small reference engine used by the CLI and the
// session tests. The core never mutates engine internals: it delivers
// validated remote commands through this interface and queries it for
// serializable state and digests.
package game

import (
	"errors"

	"github.com/tomgun/saktris-game-sub005/internal/lockstep"
)

// Side identifies one of the two players. The room creator always plays
// SideHost.
type Side int

const (
	SideHost Side = iota
	SideGuest
)

func (s Side) String() string {
	switch s {
	case SideHost:
		return "host"
	case SideGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideHost {
		return SideGuest
	}
	return SideHost
}

// MoveCommand moves a piece already on the board.
type MoveCommand struct {
	From  string
	To    string
	Extra string
}

// PlaceCommand puts an arrived piece from the reserve onto a square.
type PlaceCommand struct {
	PieceKind int
	Square    string
}

// ErrRejected indicates a command the engine refused to apply.
var ErrRejected = errors.New("command rejected")

// ErrCorruptState indicates a snapshot blob the engine could not load.
var ErrCorruptState = errors.New("corrupt state")

// Engine is the local game-engine collaborator. Implementations must be
// deterministic: two engines fed the same command sequence produce equal
// digests.
type Engine interface {
	// CurrentTurnOwner reports whose turn it is.
	CurrentTurnOwner() Side

	// ApplyLocalMove applies a move made by the local player.
	ApplyLocalMove(cmd MoveCommand) error

	// ApplyLocalPlace applies a placement made by the local player.
	ApplyLocalPlace(cmd PlaceCommand) error

	// ApplyRemoteMove applies a validated move from the remote side.
	// Returns an error wrapping ErrRejected if the move is not legal.
	ApplyRemoteMove(cmd MoveCommand) error

	// ApplyRemotePlace applies a validated placement from the remote side.
	ApplyRemotePlace(cmd PlaceCommand) error

	// ApplyArrival delivers one shared-generator draw at a turn boundary.
	ApplyArrival(draw lockstep.Draw) error

	// ComputeStateDigest fingerprints the full current state.
	ComputeStateDigest() lockstep.StateDigest

	// SerializeFullState snapshots the complete state.
	SerializeFullState() ([]byte, error)

	// LoadFullState replaces the complete state from a snapshot.
	// Returns an error wrapping ErrCorruptState on a bad blob.
	LoadFullState(blob []byte) error
}
