// Package session owns the end-to-end connection lifecycle of one peer:
// role assignment, the seed and ready handshake, turn gating, bridging
// engine events onto the wire, and digest-driven resync. All session and
// engine mutation happens on a single event loop, so state transitions
// apply one at a time in received order.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tomgun/saktris-game-sub005/internal/game"
	"github.com/tomgun/saktris-game-sub005/internal/lockstep"
	"github.com/tomgun/saktris-game-sub005/internal/protocol"
	"github.com/tomgun/saktris-game-sub005/internal/transport"
)

// resyncTimeout bounds the wait for a snapshot after divergence.
const resyncTimeout = 5 * time.Second

// digestHistory is how many recent turn digests are kept for comparison
// against the peer's state checks.
const digestHistory = 32

// Events are optional callbacks surfaced to the embedding UI. They are
// invoked from the session's event loop, so handlers must not call back
// into the session synchronously.
type Events struct {
	StateChanged func(State)
	RemoteMove   func(game.MoveCommand)
	RemotePlace  func(game.PlaceCommand)
	Arrival      func(lockstep.Draw, game.Side)
	Resynced     func()
	Disconnected func(reason string)
}

// event is one item on the session's single consumer queue.
type event struct {
	frame   []byte
	closed  bool
	op      func() error
	reply   chan error
	timeout uint64 // resync generation, 0 if not a timeout event
}

// Session is the local per-peer orchestrator. It owns the engine for the
// duration of the session: every mutation, local or remote, is serialized
// through its loop.
type Session struct {
	role   game.Side
	engine game.Engine
	tr     transport.Transport
	events Events
	log    *slog.Logger

	inbox chan event
	done  chan struct{}

	mu    sync.Mutex
	state State

	// Loop-owned fields below; never touched outside run().
	seq         protocol.Sequencer
	seeded      bool
	arrivals    *lockstep.Arrivals
	localReady  bool
	remoteReady bool
	digests     map[uint64]lockstep.StateDigest
	resyncGen   uint64
	closeOnce   sync.Once
}

// New creates a session over an established transport. The room creator
// passes game.SideHost and owns the canonical seed.
func New(role game.Side, engine game.Engine, tr transport.Transport, events Events) *Session {
	return &Session{
		role:    role,
		engine:  engine,
		tr:      tr,
		events:  events,
		log:     slog.With("role", role.String()),
		inbox:   make(chan event, 64),
		done:    make(chan struct{}),
		state:   Connected,
		digests: make(map[uint64]lockstep.StateDigest),
	}
}

// Start wires the transport and launches the event loop. The Host
// generates and transmits the session seed before anything else.
func (s *Session) Start() error {
	s.tr.OnMessage(func(data []byte) {
		select {
		case s.inbox <- event{frame: data}:
		case <-s.done:
		}
	})
	s.tr.OnClose(func() {
		select {
		case s.inbox <- event{closed: true}:
		case <-s.done:
		}
	})

	go s.run()

	if s.role == game.SideHost {
		seed, err := lockstep.NewSeed()
		if err != nil {
			s.Close()
			return NewError("generate seed", err)
		}
		return s.do(func() error {
			s.seeded = true
			s.arrivals = lockstep.NewArrivals(seed, game.PieceKinds)
			return s.send(protocol.KindSeed, protocol.SeedPayload{Seed: seed})
		})
	}
	return nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role reports the local role.
func (s *Session) Role() game.Side {
	return s.role
}

// SetReady marks the local player ready. Playing begins once both sides
// are ready and the seed has been assigned.
func (s *Session) SetReady() error {
	return s.do(func() error {
		if st := s.currentState(); st != Connected && st != Ready {
			return WrapError("ready", ErrProtocolViolation, "state "+st.String())
		}
		if !s.seeded {
			// The Guest cannot become ready before the seed arrives.
			return NewError("ready", ErrOutOfOrderProtocol)
		}
		if s.localReady {
			return nil
		}
		s.localReady = true
		if err := s.send(protocol.KindReady, nil); err != nil {
			return err
		}
		s.maybeStartPlaying()
		return nil
	})
}

// SubmitMove validates, applies and transmits a local move. It is only
// accepted when it is the local side's turn.
func (s *Session) SubmitMove(cmd game.MoveCommand) error {
	return s.do(func() error {
		if err := s.gateLocal(); err != nil {
			return err
		}
		if err := s.engine.ApplyLocalMove(cmd); err != nil {
			return NewError("apply move", err)
		}
		if err := s.send(protocol.KindMove, protocol.MovePayload{
			From:  cmd.From,
			To:    cmd.To,
			Extra: cmd.Extra,
		}); err != nil {
			return err
		}
		return s.completeTurn()
	})
}

// SubmitPlace validates, applies and transmits a local placement.
func (s *Session) SubmitPlace(cmd game.PlaceCommand) error {
	return s.do(func() error {
		if err := s.gateLocal(); err != nil {
			return err
		}
		if err := s.engine.ApplyLocalPlace(cmd); err != nil {
			return NewError("apply place", err)
		}
		if err := s.send(protocol.KindPlace, protocol.PlacePayload{
			PieceKind: cmd.PieceKind,
			Square:    cmd.Square,
		}); err != nil {
			return err
		}
		return s.completeTurn()
	})
}

// Resign notifies the peer and ends the session.
func (s *Session) Resign() error {
	return s.do(func() error {
		s.send(protocol.KindResign, nil)
		s.terminate("resigned")
		return nil
	})
}

// Leave notifies the peer and ends the session cleanly.
func (s *Session) Leave() error {
	return s.do(func() error {
		s.send(protocol.KindLeave, nil)
		s.terminate("left the session")
		return nil
	})
}

// Close tears the session down. Idempotent; safe on every path.
func (s *Session) Close() {
	if s.currentState() != Disconnected {
		s.setState(Disconnected)
	}
	s.shutdown()
}

// shutdown releases the loop and the transport exactly once.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.tr.Close()
	})
}

// do runs op on the event loop and waits for its result.
func (s *Session) do(op func() error) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- event{op: op, reply: reply}:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// run is the single consumer loop: inbound frames, transport close, local
// operations and timers all mutate state from here, in arrival order.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return

		case ev := <-s.inbox:
			switch {
			case ev.op != nil:
				ev.reply <- ev.op()

			case ev.closed:
				if s.currentState() != Disconnected {
					s.terminate("connection closed")
				}

			case ev.timeout != 0:
				if s.currentState() == Resyncing && ev.timeout == s.resyncGen {
					s.log.Error("resync timed out")
					s.terminate("resync timed out")
				}

			default:
				s.handleFrame(ev.frame)
			}
		}
	}
}

// gateLocal checks that a local command is allowed right now.
func (s *Session) gateLocal() error {
	if st := s.currentState(); st != Playing {
		return WrapError("submit", ErrNotPlaying, "state "+st.String())
	}
	if s.engine.CurrentTurnOwner() != s.role {
		return NewError("submit", ErrNotYourTurn)
	}
	return nil
}

// send encodes and transmits one message with the next sequence number.
func (s *Session) send(kind string, payload any) error {
	msg, err := protocol.NewMessage(kind, s.seq.Next(), payload)
	if err != nil {
		return NewError("encode "+kind, err)
	}
	data, err := msg.Encode()
	if err != nil {
		return NewError("encode "+kind, err)
	}
	if err := s.tr.Send(data); err != nil {
		return NewError("send "+kind, err)
	}
	return nil
}

// handleFrame processes one inbound wire message.
func (s *Session) handleFrame(data []byte) {
	if s.currentState() == Disconnected {
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		s.violation("malformed message", err)
		return
	}

	if err := s.seq.Verify(msg.Seq); err != nil {
		s.violation("sequence check", err)
		return
	}

	// Before the seed lands, the Guest accepts nothing but the seed
	// itself or a departure.
	if !s.seeded && msg.Kind != protocol.KindSeed &&
		msg.Kind != protocol.KindLeave && msg.Kind != protocol.KindResign {
		s.violation(msg.Kind+" before seed assignment", ErrOutOfOrderProtocol)
		return
	}

	switch msg.Kind {
	case protocol.KindSeed:
		s.handleSeed(msg)
	case protocol.KindReady:
		s.remoteReady = true
		s.maybeStartPlaying()
	case protocol.KindMove:
		s.handleMove(msg)
	case protocol.KindPlace:
		s.handlePlace(msg)
	case protocol.KindStateCheck:
		s.handleStateCheck(msg)
	case protocol.KindResyncRequest:
		s.handleResyncRequest()
	case protocol.KindResyncSnapshot:
		s.handleResyncSnapshot(msg)
	case protocol.KindResign:
		s.terminate("peer resigned")
	case protocol.KindLeave:
		s.terminate("peer left")
	default:
		s.violation("unknown kind "+msg.Kind, ErrProtocolViolation)
	}
}

func (s *Session) handleSeed(msg protocol.Message) {
	if s.role == game.SideHost {
		s.violation("seed from guest", ErrProtocolViolation)
		return
	}
	if s.seeded {
		s.violation("duplicate seed assignment", ErrProtocolViolation)
		return
	}

	var payload protocol.SeedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		s.violation("seed payload", err)
		return
	}

	s.seeded = true
	s.arrivals = lockstep.NewArrivals(payload.Seed, game.PieceKinds)
	s.log.Debug("seed assigned", "seed", payload.Seed)
	s.maybeStartPlaying()
}

// maybeStartPlaying transitions Connected → Ready → Playing once both
// ready flags are set, then triggers the opening arrival so the first
// player has a piece to use.
func (s *Session) maybeStartPlaying() {
	if !s.seeded || !s.localReady || !s.remoteReady {
		return
	}
	if s.currentState() != Connected {
		return
	}

	s.setState(Ready)
	s.setState(Playing)

	draw := s.arrivals.Next()
	if err := s.engine.ApplyArrival(draw); err != nil {
		s.violation("opening arrival", err)
		return
	}
	if s.events.Arrival != nil {
		s.events.Arrival(draw, s.engine.CurrentTurnOwner())
	}
}

func (s *Session) handleMove(msg protocol.Message) {
	var payload protocol.MovePayload
	if err := msg.DecodePayload(&payload); err != nil {
		s.violation("move payload", err)
		return
	}

	cmd := game.MoveCommand{From: payload.From, To: payload.To, Extra: payload.Extra}
	if !s.gateRemote("move") {
		return
	}

	if err := s.engine.ApplyRemoteMove(cmd); err != nil {
		// An in-turn command the engine refuses means the two boards
		// disagree; the digest exchange will catch and repair it.
		s.log.Warn("remote move rejected by engine", "error", err)
		return
	}
	if s.events.RemoteMove != nil {
		s.events.RemoteMove(cmd)
	}
	if err := s.completeTurn(); err != nil {
		s.log.Warn("turn boundary after remote move", "error", err)
	}
}

func (s *Session) handlePlace(msg protocol.Message) {
	var payload protocol.PlacePayload
	if err := msg.DecodePayload(&payload); err != nil {
		s.violation("place payload", err)
		return
	}

	cmd := game.PlaceCommand{PieceKind: payload.PieceKind, Square: payload.Square}
	if !s.gateRemote("place") {
		return
	}

	if err := s.engine.ApplyRemotePlace(cmd); err != nil {
		s.log.Warn("remote place rejected by engine", "error", err)
		return
	}
	if s.events.RemotePlace != nil {
		s.events.RemotePlace(cmd)
	}
	if err := s.completeTurn(); err != nil {
		s.log.Warn("turn boundary after remote place", "error", err)
	}
}

// gateRemote rejects gameplay commands outside Playing or outside the
// sender's turn. A single stray message is not treated as malicious: it
// is logged and dropped, the engine untouched, the session kept alive.
func (s *Session) gateRemote(kind string) bool {
	if st := s.currentState(); st != Playing {
		s.log.Warn("dropping "+kind+" outside playing state", "state", st.String())
		return false
	}
	if s.engine.CurrentTurnOwner() != s.role.Opponent() {
		s.log.Warn("rejected out-of-turn "+kind, "error", ErrOutOfTurn)
		return false
	}
	return true
}

// completeTurn runs the shared turn boundary after any applied command:
// advance the arrival stream in lockstep, hand the draw to the engine,
// then exchange a state check.
func (s *Session) completeTurn() error {
	draw := s.arrivals.Next()
	if err := s.engine.ApplyArrival(draw); err != nil {
		s.violation("arrival", err)
		return NewError("arrival", err)
	}
	if s.events.Arrival != nil {
		s.events.Arrival(draw, s.engine.CurrentTurnOwner())
	}

	digest := s.engine.ComputeStateDigest()
	s.recordDigest(digest)
	return s.send(protocol.KindStateCheck, protocol.StateCheckPayload{Digest: digest})
}

// recordDigest keeps a short window of per-turn digests so the peer's
// checks can be compared even when the local side has already moved on.
func (s *Session) recordDigest(d lockstep.StateDigest) {
	s.digests[d.TurnIndex] = d
	if d.TurnIndex >= digestHistory {
		delete(s.digests, d.TurnIndex-digestHistory)
	}
}

func (s *Session) handleStateCheck(msg protocol.Message) {
	var payload protocol.StateCheckPayload
	if err := msg.DecodePayload(&payload); err != nil {
		s.violation("state check payload", err)
		return
	}

	if s.currentState() == Resyncing {
		return
	}

	mine, ok := s.digests[payload.Digest.TurnIndex]
	if !ok {
		// Outside the comparison window; nothing to check against.
		return
	}
	if mine.Equal(payload.Digest) {
		return
	}

	s.log.Warn("state divergence detected",
		"turn", payload.Digest.TurnIndex,
		"local", mine.String(),
		"remote", payload.Digest.String())

	// Only Host state is authoritative: the Guest asks for a snapshot,
	// the Host waits for that request.
	if s.role == game.SideGuest {
		s.beginResync()
	}
}

// beginResync moves the Guest into Resyncing and requests the Host's
// authoritative snapshot, bounded by a timeout.
func (s *Session) beginResync() {
	s.setState(Resyncing)
	s.resyncGen++
	gen := s.resyncGen

	if err := s.send(protocol.KindResyncRequest, nil); err != nil {
		s.terminate("resync request failed")
		return
	}

	time.AfterFunc(resyncTimeout, func() {
		select {
		case s.inbox <- event{timeout: gen}:
		case <-s.done:
		}
	})
}

func (s *Session) handleResyncRequest() {
	if s.role != game.SideHost {
		// Guest-originated state is never authoritative; a snapshot
		// request sent to the Guest is a protocol error.
		s.violation("resync request to non-authoritative side", ErrProtocolViolation)
		return
	}

	blob, err := s.engine.SerializeFullState()
	if err != nil {
		s.violation("serialize snapshot", err)
		return
	}
	s.log.Info("serving resync snapshot", "bytes", len(blob), "drawn", s.arrivals.Drawn())
	s.send(protocol.KindResyncSnapshot, protocol.ResyncSnapshotPayload{State: blob, Drawn: s.arrivals.Drawn()})
}

func (s *Session) handleResyncSnapshot(msg protocol.Message) {
	if s.role != game.SideGuest {
		s.violation("snapshot from guest", ErrProtocolViolation)
		return
	}
	if s.currentState() != Resyncing {
		s.violation("unsolicited snapshot", ErrProtocolViolation)
		return
	}

	var payload protocol.ResyncSnapshotPayload
	if err := msg.DecodePayload(&payload); err != nil {
		s.log.Error("resync snapshot payload", "error", err)
		s.terminate("resync failed: malformed snapshot")
		return
	}

	if err := s.engine.LoadFullState(payload.State); err != nil {
		s.log.Error("resync load failed", "error", err)
		s.terminate("resync failed: " + err.Error())
		return
	}

	// The snapshot includes the Host's arrival-stream position; without
	// realigning, a Guest that skipped draws would diverge again on the
	// very next turn.
	s.arrivals.Seek(payload.Drawn)

	// Wholesale replacement: the local history is gone, so start the
	// comparison window fresh from the adopted state.
	s.digests = make(map[uint64]lockstep.StateDigest)
	s.recordDigest(s.engine.ComputeStateDigest())
	s.resyncGen++

	s.setState(Playing)
	s.log.Info("resync complete")
	if s.events.Resynced != nil {
		s.events.Resynced()
	}
}

// violation logs a fatal protocol error and terminates the session;
// continuing after one risks corrupting the engine.
func (s *Session) violation(what string, err error) {
	s.log.Error("protocol violation", "what", what, "error", err)
	s.terminate("protocol violation: " + what)
}

// terminate is the single point translating internal failures into the
// terminal Disconnected state plus a human-readable reason.
func (s *Session) terminate(reason string) {
	if s.currentState() == Disconnected {
		return
	}
	s.setState(Disconnected)
	s.log.Info("session ended", "reason", reason)
	if s.events.Disconnected != nil {
		s.events.Disconnected(reason)
	}
	s.shutdown()
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.events.StateChanged != nil {
		s.events.StateChanged(st)
	}
}
