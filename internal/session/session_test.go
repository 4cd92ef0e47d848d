package session_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomgun/saktris-game-sub005/internal/game"
	"github.com/tomgun/saktris-game-sub005/internal/lockstep"
	"github.com/tomgun/saktris-game-sub005/internal/protocol"
	"github.com/tomgun/saktris-game-sub005/internal/session"
	"github.com/tomgun/saktris-game-sub005/internal/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type pair struct {
	host     *session.Session
	guest    *session.Session
	hostEng  *game.GridEngine
	guestEng *game.GridEngine

	hostDown  atomic.Int32
	guestDown atomic.Int32
	resyncs   atomic.Int32
}

// newPair wires two sessions over an in-memory transport and walks them to
// Playing.
func newPair(t *testing.T) *pair {
	t.Helper()

	p := &pair{
		hostEng:  game.NewGridEngine(),
		guestEng: game.NewGridEngine(),
	}

	a, b := transport.Pipe()
	p.host = session.New(game.SideHost, p.hostEng, a, session.Events{
		Disconnected: func(string) { p.hostDown.Add(1) },
	})
	p.guest = session.New(game.SideGuest, p.guestEng, b, session.Events{
		Disconnected: func(string) { p.guestDown.Add(1) },
		Resynced:     func() { p.resyncs.Add(1) },
	})

	require.NoError(t, p.host.Start())
	require.NoError(t, p.guest.Start())
	t.Cleanup(func() {
		p.host.Close()
		p.guest.Close()
	})

	require.NoError(t, p.host.SetReady())
	// The guest cannot be ready before the seed assignment lands.
	require.Eventually(t, func() bool { return p.guest.SetReady() == nil }, waitFor, tick)

	waitState(t, p.host, session.Playing)
	waitState(t, p.guest, session.Playing)
	return p
}

func waitState(t *testing.T, s *session.Session, want session.State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		waitFor, tick, "want state %s, have %s", want, s.State())
}

// reserveKind waits for and returns the first reserve piece of a side.
func reserveKind(t *testing.T, eng *game.GridEngine, side game.Side) int {
	t.Helper()
	var kind int
	require.Eventually(t, func() bool {
		r := eng.Reserve(side)
		if len(r) == 0 {
			return false
		}
		kind = r[0]
		return true
	}, waitFor, tick)
	return kind
}

func enginesConverged(a, b *game.GridEngine) bool {
	return a.ComputeStateDigest().Equal(b.ComputeStateDigest())
}

func TestLockstepArrivalsMatch(t *testing.T) {
	p := newPair(t)

	// The opening arrival was drawn independently on both sides.
	hostKind := reserveKind(t, p.hostEng, game.SideHost)
	guestKind := reserveKind(t, p.guestEng, game.SideHost)
	assert.Equal(t, hostKind, guestKind)
	assert.True(t, enginesConverged(p.hostEng, p.guestEng))
}

func TestPlacementsMirrorAndStayConverged(t *testing.T) {
	p := newPair(t)
	squares := []string{"d4", "e5", "c3", "f6"}

	for i, square := range squares {
		mover, eng := p.host, p.hostEng
		side := game.SideHost
		if i%2 == 1 {
			mover, eng = p.guest, p.guestEng
			side = game.SideGuest
		}

		kind := reserveKind(t, eng, side)
		require.NoError(t, mover.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: square}))

		require.Eventually(t, func() bool {
			return enginesConverged(p.hostEng, p.guestEng)
		}, waitFor, tick, "diverged after placement %d", i)
	}

	// All four placements are on both boards.
	for _, square := range squares {
		_, _, onHost := p.hostEng.PieceAt(square)
		_, _, onGuest := p.guestEng.PieceAt(square)
		assert.True(t, onHost, "square %s missing on host", square)
		assert.True(t, onGuest, "square %s missing on guest", square)
	}
}

func TestMoveMirrorsToPeer(t *testing.T) {
	p := newPair(t)

	kind := reserveKind(t, p.hostEng, game.SideHost)
	require.NoError(t, p.host.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: "e2"}))

	kind = reserveKind(t, p.guestEng, game.SideGuest)
	require.NoError(t, p.guest.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: "e7"}))

	require.Eventually(t, func() bool {
		return enginesConverged(p.hostEng, p.guestEng)
	}, waitFor, tick)

	require.NoError(t, p.host.SubmitMove(game.MoveCommand{From: "e2", To: "e4"}))

	require.Eventually(t, func() bool {
		_, _, ok := p.guestEng.PieceAt("e4")
		return ok && enginesConverged(p.hostEng, p.guestEng)
	}, waitFor, tick)
}

func TestLocalOutOfTurnRejected(t *testing.T) {
	p := newPair(t)

	// Host opens; it is not the guest's turn.
	before := p.guestEng.ComputeStateDigest()
	err := p.guest.SubmitPlace(game.PlaceCommand{PieceKind: 1, Square: "a1"})
	assert.ErrorIs(t, err, session.ErrNotYourTurn)
	assert.True(t, before.Equal(p.guestEng.ComputeStateDigest()), "rejected command mutated the engine")

	// The session survives a local rejection.
	assert.Equal(t, session.Playing, p.guest.State())
}

func TestLeaveNotifiesPeer(t *testing.T) {
	p := newPair(t)

	// Leave tears the session down from inside its own operation, so the
	// reply races the shutdown; only the peer-visible effect matters.
	p.host.Leave()

	waitState(t, p.guest, session.Disconnected)
	require.Eventually(t, func() bool { return p.guestDown.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(1), p.guestDown.Load(), "guest notified more than once")
}

func TestTransportCloseDisconnects(t *testing.T) {
	p := newPair(t)

	p.host.Close()

	waitState(t, p.guest, session.Disconnected)
	require.Eventually(t, func() bool { return p.guestDown.Load() == 1 }, waitFor, tick)
}

func TestResyncRoundTrip(t *testing.T) {
	p := newPair(t)

	// Corrupt the guest's board behind the session's back: an extra
	// reserve piece the host never saw.
	require.NoError(t, p.guestEng.ApplyArrival(lockstep.Draw{Kind: 2}))
	require.False(t, enginesConverged(p.hostEng, p.guestEng))

	// The next completed turn exchanges mismatched digests, which only
	// the Host can repair.
	kind := reserveKind(t, p.hostEng, game.SideHost)
	require.NoError(t, p.host.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: "d4"}))

	require.Eventually(t, func() bool { return p.resyncs.Load() == 1 }, waitFor, tick)
	waitState(t, p.guest, session.Playing)
	assert.True(t, enginesConverged(p.hostEng, p.guestEng), "guest did not adopt the host snapshot")
}

// fakePeer scripts raw wire frames against a real session, for protocol
// paths a well-behaved session never produces.
type fakePeer struct {
	t  *testing.T
	tr transport.Transport
	in chan protocol.Message
	// out is the fake's own outbound counter. The real session verifies
	// it, so scripted frames normally increment it by one.
	out uint64
}

func newFakeHostedGuest(t *testing.T, eng game.Engine, events session.Events) (*fakePeer, *session.Session) {
	t.Helper()

	a, b := transport.Pipe()
	f := &fakePeer{t: t, tr: a, in: make(chan protocol.Message, 64)}
	a.OnMessage(func(data []byte) {
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		f.in <- msg
	})

	guest := session.New(game.SideGuest, eng, b, events)
	require.NoError(t, guest.Start())
	t.Cleanup(guest.Close)
	return f, guest
}

func (f *fakePeer) send(kind string, payload any) {
	f.t.Helper()
	f.out++
	f.sendSeq(kind, f.out, payload)
}

func (f *fakePeer) sendSeq(kind string, seq uint64, payload any) {
	f.t.Helper()
	msg, err := protocol.NewMessage(kind, seq, payload)
	require.NoError(f.t, err)
	data, err := msg.Encode()
	require.NoError(f.t, err)
	require.NoError(f.t, f.tr.Send(data))
}

// expect waits for the next frame of the given kind, skipping state checks
// the scripted side does not care about.
func (f *fakePeer) expect(kind string) protocol.Message {
	f.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case msg := <-f.in:
			if msg.Kind == kind {
				return msg
			}
			if msg.Kind == protocol.KindStateCheck {
				continue
			}
			f.t.Fatalf("expected %s, got %s", kind, msg.Kind)
		case <-deadline:
			f.t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestGameplayBeforeSeedIsViolation(t *testing.T) {
	eng := game.NewGridEngine()
	var reason atomic.Value
	fake, guest := newFakeHostedGuest(t, eng, session.Events{
		Disconnected: func(r string) { reason.Store(r) },
	})

	fake.send(protocol.KindMove, protocol.MovePayload{From: "e2", To: "e4"})

	waitState(t, guest, session.Disconnected)
	require.Eventually(t, func() bool { return reason.Load() != nil }, waitFor, tick)
	assert.Contains(t, reason.Load().(string), "protocol violation")
}

func TestSequenceGapIsViolation(t *testing.T) {
	eng := game.NewGridEngine()
	fake, guest := newFakeHostedGuest(t, eng, session.Events{})

	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 42})
	// Skip a sequence number: the transport never loses messages, so a
	// gap can only mean protocol disagreement.
	fake.sendSeq(protocol.KindReady, 3, nil)

	waitState(t, guest, session.Disconnected)
}

func TestDuplicateSeedIsViolation(t *testing.T) {
	eng := game.NewGridEngine()
	fake, guest := newFakeHostedGuest(t, eng, session.Events{})

	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 42})
	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 43})

	waitState(t, guest, session.Disconnected)
}

func TestRemoteOutOfTurnIgnored(t *testing.T) {
	eng := game.NewGridEngine()
	fake, guest := newFakeHostedGuest(t, eng, session.Events{})

	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 42})
	require.Eventually(t, func() bool { return guest.SetReady() == nil }, waitFor, tick)
	fake.expect(protocol.KindReady)
	fake.send(protocol.KindReady, nil)
	waitState(t, guest, session.Playing)

	// The host opens: place the first arrival, handing the turn to the
	// guest. Seed 42 draws are deterministic on both sides.
	arrivals := lockstep.NewArrivals(42, game.PieceKinds)
	opening := arrivals.Next()
	fake.send(protocol.KindPlace, protocol.PlacePayload{PieceKind: opening.Kind + 1, Square: "d4"})

	require.Eventually(t, func() bool {
		_, _, ok := eng.PieceAt("d4")
		return ok
	}, waitFor, tick)
	digest := eng.ComputeStateDigest()

	// Now the host moves again out of turn. The guest must drop it
	// without touching the engine and without disconnecting.
	fake.send(protocol.KindMove, protocol.MovePayload{From: "d4", To: "d5"})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, session.Playing, guest.State())
	assert.True(t, digest.Equal(eng.ComputeStateDigest()), "out-of-turn move mutated the engine")
	_, _, moved := eng.PieceAt("d5")
	assert.False(t, moved)
}

// TestConcurrentEngineReadsDuringPlay hammers the engine's read surface
// from another goroutine while the sessions play, the way a render loop
// polls the board. Run with -race.
func TestConcurrentEngineReadsDuringPlay(t *testing.T) {
	p := newPair(t)

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		squares := []string{"a1", "d4", "e5", "h8"}
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, eng := range []*game.GridEngine{p.hostEng, p.guestEng} {
				eng.TurnIndex()
				eng.CurrentTurnOwner()
				eng.Reserve(game.SideHost)
				eng.Reserve(game.SideGuest)
				for _, sq := range squares {
					eng.PieceAt(sq)
				}
			}
		}
	}()

	squares := []string{"d4", "e5", "c3", "f6", "b2", "g7"}
	for i, square := range squares {
		mover, eng := p.host, p.hostEng
		side := game.SideHost
		if i%2 == 1 {
			mover, eng = p.guest, p.guestEng
			side = game.SideGuest
		}
		kind := reserveKind(t, eng, side)
		require.NoError(t, mover.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: square}))
		require.Eventually(t, func() bool {
			return enginesConverged(p.hostEng, p.guestEng)
		}, waitFor, tick)
	}

	close(stop)
	<-readerDone
}

func TestResyncRequestToGuestIsViolation(t *testing.T) {
	eng := game.NewGridEngine()
	fake, guest := newFakeHostedGuest(t, eng, session.Events{})

	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 7})
	require.Eventually(t, func() bool { return guest.SetReady() == nil }, waitFor, tick)
	fake.expect(protocol.KindReady)
	fake.send(protocol.KindReady, nil)
	waitState(t, guest, session.Playing)

	// Guest-originated state is never authoritative; asking the guest
	// for a snapshot is fatal.
	fake.send(protocol.KindResyncRequest, nil)

	waitState(t, guest, session.Disconnected)
}

func TestMalformedSnapshotFailsResync(t *testing.T) {
	eng := game.NewGridEngine()
	var reason atomic.Value
	fake, guest := newFakeHostedGuest(t, eng, session.Events{
		Disconnected: func(r string) { reason.Store(r) },
	})

	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 7})
	require.Eventually(t, func() bool { return guest.SetReady() == nil }, waitFor, tick)
	fake.expect(protocol.KindReady)
	fake.send(protocol.KindReady, nil)
	waitState(t, guest, session.Playing)

	// Complete one turn so both sides hold a digest for turn 1, then
	// claim a different hash to force the guest into resync.
	arrivals := lockstep.NewArrivals(7, game.PieceKinds)
	opening := arrivals.Next()
	fake.send(protocol.KindPlace, protocol.PlacePayload{PieceKind: opening.Kind + 1, Square: "c3"})
	fake.expect(protocol.KindStateCheck)

	bogus := lockstep.Digest(1, []byte("someone else's board"))
	fake.send(protocol.KindStateCheck, protocol.StateCheckPayload{Digest: bogus})

	fake.expect(protocol.KindResyncRequest)
	fake.send(protocol.KindResyncSnapshot, protocol.ResyncSnapshotPayload{State: []byte("garbage")})

	waitState(t, guest, session.Disconnected)
	require.Eventually(t, func() bool { return reason.Load() != nil }, waitFor, tick)
	assert.Contains(t, reason.Load().(string), "resync failed")
}

// TestResyncRealignsArrivalStream covers the case where the guest has
// fallen behind the host by a whole turn, and with it a generator draw.
// The snapshot must carry the host's stream position so both sides keep
// drawing identical arrivals after the repair.
func TestResyncRealignsArrivalStream(t *testing.T) {
	eng := game.NewGridEngine()
	var resyncs atomic.Int32
	fake, guest := newFakeHostedGuest(t, eng, session.Events{
		Resynced: func() { resyncs.Add(1) },
	})

	// refEng and refArr model the host's authoritative state, mirroring
	// every step the scripted frames imply.
	refEng := game.NewGridEngine()
	refArr := lockstep.NewArrivals(11, game.PieceKinds)

	fake.send(protocol.KindSeed, protocol.SeedPayload{Seed: 11})
	require.Eventually(t, func() bool { return guest.SetReady() == nil }, waitFor, tick)
	fake.expect(protocol.KindReady)
	fake.send(protocol.KindReady, nil)
	waitState(t, guest, session.Playing)
	require.NoError(t, refEng.ApplyArrival(refArr.Next()))

	// Host opens normally; both sides complete turn 1 and draw once more.
	kind := refEng.Reserve(game.SideHost)[0]
	require.NoError(t, refEng.ApplyPlace(game.SideHost, game.PlaceCommand{PieceKind: kind, Square: "d4"}))
	require.NoError(t, refEng.ApplyArrival(refArr.Next()))
	fake.send(protocol.KindPlace, protocol.PlacePayload{PieceKind: kind, Square: "d4"})
	fake.expect(protocol.KindStateCheck)
	require.Eventually(t, func() bool {
		return enginesConverged(eng, refEng)
	}, waitFor, tick)

	// The host advances a whole turn the guest never sees, including the
	// post-turn draw. The guest is now a turn and a draw behind.
	kind = refEng.Reserve(game.SideGuest)[0]
	require.NoError(t, refEng.ApplyPlace(game.SideGuest, game.PlaceCommand{PieceKind: kind, Square: "e5"}))
	require.NoError(t, refEng.ApplyArrival(refArr.Next()))
	require.False(t, enginesConverged(eng, refEng))

	// A mismatched check for turn 1 pushes the guest into resync; serve
	// the authoritative snapshot with the stream position.
	fake.send(protocol.KindStateCheck, protocol.StateCheckPayload{
		Digest: lockstep.Digest(1, []byte("host sees a different board")),
	})
	fake.expect(protocol.KindResyncRequest)
	blob, err := refEng.SerializeFullState()
	require.NoError(t, err)
	fake.send(protocol.KindResyncSnapshot, protocol.ResyncSnapshotPayload{State: blob, Drawn: refArr.Drawn()})

	require.Eventually(t, func() bool { return resyncs.Load() == 1 }, waitFor, tick)
	waitState(t, guest, session.Playing)
	require.True(t, enginesConverged(eng, refEng), "guest did not adopt the snapshot")

	// Play on. If the guest's generator were still offset, the next turn
	// boundary would apply a different draw and the digests would split.
	kind = refEng.Reserve(game.SideHost)[0]
	require.NoError(t, refEng.ApplyPlace(game.SideHost, game.PlaceCommand{PieceKind: kind, Square: "f3"}))
	require.NoError(t, refEng.ApplyArrival(refArr.Next()))
	fake.send(protocol.KindPlace, protocol.PlacePayload{PieceKind: kind, Square: "f3"})

	check := fake.expect(protocol.KindStateCheck)
	var payload protocol.StateCheckPayload
	require.NoError(t, check.DecodePayload(&payload))
	assert.True(t, refEng.ComputeStateDigest().Equal(payload.Digest),
		"guest diverged on the first turn after resync")

	// And a guest-originated turn keeps them converged too.
	kind = eng.Reserve(game.SideGuest)[0]
	require.NoError(t, guest.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: "g6"}))
	fake.expect(protocol.KindPlace)
	require.NoError(t, refEng.ApplyPlace(game.SideGuest, game.PlaceCommand{PieceKind: kind, Square: "g6"}))
	require.NoError(t, refEng.ApplyArrival(refArr.Next()))

	check = fake.expect(protocol.KindStateCheck)
	require.NoError(t, check.DecodePayload(&payload))
	assert.True(t, refEng.ComputeStateDigest().Equal(payload.Digest),
		"guest diverged two turns after resync")
}
