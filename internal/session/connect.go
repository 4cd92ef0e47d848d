package session

import (
	"context"
	"time"

	"github.com/tomgun/saktris-game-sub005/internal/config"
	"github.com/tomgun/saktris-game-sub005/internal/game"
	"github.com/tomgun/saktris-game-sub005/internal/relay"
	"github.com/tomgun/saktris-game-sub005/internal/signaling"
	"github.com/tomgun/saktris-game-sub005/internal/transport"
)

// roomAckTimeout bounds the relay's response to a create or join request.
const roomAckTimeout = 30 * time.Second

// Connector dials the relay, resolves a room and brings the direct peer
// transport up, handing back a started Session. The relay is only needed
// until negotiation completes; gameplay never touches it.
type Connector struct {
	Config *config.Config

	// RoomCode is invoked on the host path as soon as the relay assigns
	// a code, so it can be shown while waiting for the guest.
	RoomCode func(code string)

	// StateChanged reports connection progress before a Session exists.
	// After that the Session's own Events take over.
	StateChanged func(State)
}

// Host creates a room, waits for a guest to join and negotiates the peer
// transport as the offerer.
func (c *Connector) Host(ctx context.Context, engine game.Engine, events Events) (*Session, error) {
	client, handler, err := c.dial()
	if err != nil {
		return nil, err
	}

	client.SendMessage(&signaling.Message{Type: signaling.MessageTypeCreate})
	code, err := waitForCode(ctx, handler.RoomCreated, handler.Error, "create room")
	if err != nil {
		closeSignaling(client, handler)
		return nil, err
	}
	if c.RoomCode != nil {
		c.RoomCode(code)
	}

	// The guest may take a while to type the code; only the caller's
	// context bounds this wait.
	select {
	case <-handler.PeerJoined:
	case errMsg := <-handler.Error:
		closeSignaling(client, handler)
		return nil, WrapError("wait for guest", ErrSignaling, errMsg)
	case <-ctx.Done():
		closeSignaling(client, handler)
		return nil, WrapError("wait for guest", ErrTimeout, ctx.Err().Error())
	}

	return c.negotiate(engine, client, handler, game.SideHost, events)
}

// Join enters an existing room by its code and negotiates the peer
// transport as the answerer. Codes are case-insensitive.
func (c *Connector) Join(ctx context.Context, code string, engine game.Engine, events Events) (*Session, error) {
	client, handler, err := c.dial()
	if err != nil {
		return nil, err
	}

	client.SendMessage(&signaling.Message{
		Type: signaling.MessageTypeJoin,
		Code: relay.NormalizeCode(code),
	})
	if _, err := waitForCode(ctx, handler.RoomJoined, handler.Error, "join room"); err != nil {
		closeSignaling(client, handler)
		return nil, err
	}

	return c.negotiate(engine, client, handler, game.SideGuest, events)
}

// dial connects to the relay and starts routing its messages.
func (c *Connector) dial() (*signaling.Client, *signaling.Handler, error) {
	c.setState(Idle)

	client := signaling.NewClient(c.Config.WebSocketURL)
	if err := client.Connect(); err != nil {
		return nil, nil, WrapError("connect to relay", ErrSignaling, err.Error())
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	c.setState(AwaitingRoom)
	return client, handler, nil
}

// negotiate runs the offer/answer exchange over the relay and starts the
// session once the data channel is open.
func (c *Connector) negotiate(engine game.Engine, client *signaling.Client,
	handler *signaling.Handler, role game.Side, events Events) (*Session, error) {

	c.setState(Negotiating)

	peer, err := transport.NewPeer(c.Config, client, handler, role == game.SideHost)
	if err != nil {
		closeSignaling(client, handler)
		return nil, NewError("create peer transport", err)
	}
	if err := peer.Connect(); err != nil {
		peer.Close()
		closeSignaling(client, handler)
		return nil, NewError("negotiate peer transport", err)
	}

	c.setState(Connected)

	s := New(role, engine, peer, events)
	if err := s.Start(); err != nil {
		closeSignaling(client, handler)
		return nil, err
	}

	// Gameplay runs directly peer to peer; the relay has done its job.
	closeSignaling(client, handler)
	return s, nil
}

func (c *Connector) setState(st State) {
	if c.StateChanged != nil {
		c.StateChanged(st)
	}
}

// closeSignaling tears the relay connection down in dependency order: the
// client first so the handler's routing loop drains, then the handler's
// fan-out channels.
func closeSignaling(client *signaling.Client, handler *signaling.Handler) {
	client.Close()
	handler.Close()
}

// waitForCode waits for the relay to acknowledge a room request.
func waitForCode(ctx context.Context, ack <-chan string, errs <-chan string, op string) (string, error) {
	timer := time.NewTimer(roomAckTimeout)
	defer timer.Stop()

	select {
	case code := <-ack:
		return code, nil
	case errMsg := <-errs:
		return "", WrapError(op, ErrSignaling, errMsg)
	case <-timer.C:
		return "", NewError(op, ErrTimeout)
	case <-ctx.Done():
		return "", WrapError(op, ErrTimeout, ctx.Err().Error())
	}
}
