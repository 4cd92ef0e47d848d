package game

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomgun/saktris-game-sub005/internal/lockstep"
)

// Board dimensions and piece kinds for the reference engine.
const (
	BoardSize  = 8
	PieceKinds = 5
)

// piece is one occupied cell. Kind 0 is reserved for empty in the board
// encoding, so stored kinds are 1..PieceKinds.
type piece struct {
	Kind  int  `msgpack:"kind"`
	Owner Side `msgpack:"owner"`
}

// gridState is the full serializable engine state.
type gridState struct {
	Board     map[string]piece `msgpack:"board"`
	Reserves  map[Side][]int   `msgpack:"reserves"`
	TurnOwner Side             `msgpack:"turn_owner"`
	TurnIndex uint64           `msgpack:"turn_index"`
}

// GridEngine is a minimal deterministic board engine: pieces move or are
// placed from a per-side reserve fed by the shared arrival stream, captures
// replace, turns alternate. It implements just enough rules to exercise the
// network core end to end; full move legality lives in the real engine.
//
// The session loop mutates the engine while the UI polls it for rendering,
// so every exported method takes the engine mutex.
type GridEngine struct {
	mu    sync.Mutex
	state gridState
}

// Compile-time interface check.
var _ Engine = (*GridEngine)(nil)

// NewGridEngine creates an empty board with the host to move.
func NewGridEngine() *GridEngine {
	return &GridEngine{
		state: gridState{
			Board:     make(map[string]piece),
			Reserves:  map[Side][]int{SideHost: nil, SideGuest: nil},
			TurnOwner: SideHost,
		},
	}
}

// CurrentTurnOwner reports whose turn it is.
func (g *GridEngine) CurrentTurnOwner() Side {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.TurnOwner
}

// TurnIndex reports how many turns have completed.
func (g *GridEngine) TurnIndex() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.TurnIndex
}

// Reserve returns the pending arrival kinds for a side.
func (g *GridEngine) Reserve(side Side) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.state.Reserves[side]...)
}

// PieceAt returns the piece kind and owner on a square, if occupied.
func (g *GridEngine) PieceAt(square string) (int, Side, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.state.Board[square]
	return p.Kind, p.Owner, ok
}

// ApplyMove moves one of side's pieces. The destination may hold an
// opposing piece, which is captured.
func (g *GridEngine) ApplyMove(side Side, cmd MoveCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyMove(side, cmd)
}

func (g *GridEngine) applyMove(side Side, cmd MoveCommand) error {
	if side != g.state.TurnOwner {
		return fmt.Errorf("%w: not %s's turn", ErrRejected, side)
	}
	if !validSquare(cmd.From) || !validSquare(cmd.To) {
		return fmt.Errorf("%w: square out of bounds", ErrRejected)
	}

	p, ok := g.state.Board[cmd.From]
	if !ok || p.Owner != side {
		return fmt.Errorf("%w: no %s piece on %s", ErrRejected, side, cmd.From)
	}
	if target, occupied := g.state.Board[cmd.To]; occupied && target.Owner == side {
		return fmt.Errorf("%w: own piece on %s", ErrRejected, cmd.To)
	}

	delete(g.state.Board, cmd.From)
	g.state.Board[cmd.To] = p
	g.completeTurn()
	return nil
}

// ApplyPlace places a piece from side's reserve onto an empty square.
func (g *GridEngine) ApplyPlace(side Side, cmd PlaceCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyPlace(side, cmd)
}

func (g *GridEngine) applyPlace(side Side, cmd PlaceCommand) error {
	if side != g.state.TurnOwner {
		return fmt.Errorf("%w: not %s's turn", ErrRejected, side)
	}
	if !validSquare(cmd.Square) {
		return fmt.Errorf("%w: square out of bounds", ErrRejected)
	}
	if _, occupied := g.state.Board[cmd.Square]; occupied {
		return fmt.Errorf("%w: square %s occupied", ErrRejected, cmd.Square)
	}

	idx := -1
	for i, kind := range g.state.Reserves[side] {
		if kind == cmd.PieceKind {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: piece kind %d not in reserve", ErrRejected, cmd.PieceKind)
	}

	g.state.Reserves[side] = append(
		g.state.Reserves[side][:idx],
		g.state.Reserves[side][idx+1:]...,
	)
	g.state.Board[cmd.Square] = piece{Kind: cmd.PieceKind, Owner: side}
	g.completeTurn()
	return nil
}

// ApplyLocalMove applies a move made by the local player. The session
// layer has already checked turn ownership; the engine checks again.
func (g *GridEngine) ApplyLocalMove(cmd MoveCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyMove(g.state.TurnOwner, cmd)
}

// ApplyLocalPlace applies a placement made by the local player.
func (g *GridEngine) ApplyLocalPlace(cmd PlaceCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyPlace(g.state.TurnOwner, cmd)
}

// ApplyRemoteMove applies a validated move from the remote side.
func (g *GridEngine) ApplyRemoteMove(cmd MoveCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyMove(g.state.TurnOwner, cmd)
}

// ApplyRemotePlace applies a validated placement from the remote side.
func (g *GridEngine) ApplyRemotePlace(cmd PlaceCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyPlace(g.state.TurnOwner, cmd)
}

// ApplyArrival feeds one shared-generator draw into the reserve of the
// side now on turn. Draw kinds are zero-based; board kinds start at 1.
func (g *GridEngine) ApplyArrival(draw lockstep.Draw) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if draw.Kind < 0 || draw.Kind >= PieceKinds {
		return fmt.Errorf("%w: arrival kind %d", ErrRejected, draw.Kind)
	}
	side := g.state.TurnOwner
	g.state.Reserves[side] = append(g.state.Reserves[side], draw.Kind+1)
	return nil
}

// completeTurn hands the move to the other side.
func (g *GridEngine) completeTurn() {
	g.state.TurnIndex++
	g.state.TurnOwner = g.state.TurnOwner.Opponent()
}

// ComputeStateDigest fingerprints the full current state.
func (g *GridEngine) ComputeStateDigest() lockstep.StateDigest {
	g.mu.Lock()
	defer g.mu.Unlock()
	blob, err := g.serialize()
	if err != nil {
		// Serialization of an in-memory map cannot fail with msgpack.
		panic("game: serialize state: " + err.Error())
	}
	return lockstep.Digest(g.state.TurnIndex, blob)
}

// SerializeFullState snapshots the complete state. The board map is
// re-encoded as a sorted slice so equal states always serialize to equal
// bytes.
func (g *GridEngine) SerializeFullState() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.serialize()
}

func (g *GridEngine) serialize() ([]byte, error) {
	return msgpack.Marshal(canonicalize(g.state))
}

// LoadFullState replaces the complete state from a snapshot.
func (g *GridEngine) LoadFullState(blob []byte) error {
	var snap canonicalState
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	state := gridState{
		Board:     make(map[string]piece, len(snap.Cells)),
		Reserves:  map[Side][]int{SideHost: snap.HostReserve, SideGuest: snap.GuestReserve},
		TurnOwner: snap.TurnOwner,
		TurnIndex: snap.TurnIndex,
	}
	for _, c := range snap.Cells {
		if !validSquare(c.Square) || c.Kind < 1 || c.Kind > PieceKinds {
			return fmt.Errorf("%w: cell %q kind %d", ErrCorruptState, c.Square, c.Kind)
		}
		state.Board[c.Square] = piece{Kind: c.Kind, Owner: c.Owner}
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
	return nil
}

// validSquare checks algebraic coordinates a1..h8.
func validSquare(sq string) bool {
	if len(sq) != 2 {
		return false
	}
	file := sq[0] - 'a'
	rank := sq[1] - '1'
	return file < BoardSize && rank < BoardSize
}
