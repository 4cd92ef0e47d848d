package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recvWait = time.Second

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(recvWait):
		t.Fatal("timed out waiting on channel")
		panic("unreachable")
	}
}

func TestSendMessageAfterCloseIsDropped(t *testing.T) {
	c := NewClient("ws://relay.invalid/ws")
	c.Close()

	// Trickle ICE keeps producing candidates after the connector tears
	// signaling down; late sends must be no-ops, not panics.
	require.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			c.SendMessage(&Message{Type: MessageTypeSignal, SignalType: "candidate"})
		}
	})
}

func TestSendMessageConcurrentWithClose(t *testing.T) {
	c := NewClient("ws://relay.invalid/ws")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.SendMessage(&Message{Type: MessageTypeSignal})
		}
	}()
	c.Close()

	select {
	case <-done:
	case <-time.After(recvWait):
		t.Fatal("sender blocked after close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewClient("ws://relay.invalid/ws")
	require.NotPanics(t, func() {
		c.Close()
		c.Close()
		c.Close()
	})
}

func TestHandlerRoutesMessages(t *testing.T) {
	c := NewClient("ws://relay.invalid/ws")
	h := NewHandler(c)
	go h.Start()

	c.incoming <- &Message{Type: MessageTypeCreated, Code: "AB23CD"}
	assert.Equal(t, "AB23CD", recv(t, h.RoomCreated))

	c.incoming <- &Message{Type: MessageTypeJoined, Code: "AB23CD"}
	assert.Equal(t, "AB23CD", recv(t, h.RoomJoined))

	c.incoming <- &Message{Type: MessageTypePeerJoined}
	recv(t, h.PeerJoined)

	c.incoming <- &Message{Type: MessageTypeSignal, SignalType: "offer", SDP: "v=0"}
	sig := recv(t, h.Signal)
	assert.Equal(t, "offer", sig.Type)
	assert.Equal(t, "v=0", sig.SDP)

	c.incoming <- &Message{Type: MessageTypeError}
	assert.Equal(t, "unknown error from relay", recv(t, h.Error))

	c.Close()
	h.Close()
}

func TestHandlerCloseAfterClientClose(t *testing.T) {
	c := NewClient("ws://relay.invalid/ws")
	h := NewHandler(c)
	go h.Start()

	c.incoming <- &Message{Type: MessageTypePeerLeft}
	recv(t, h.PeerLeft)

	// Client first, handler second: Close waits for the routing loop to
	// finish, then every fan-out channel reads as closed.
	c.Close()
	require.NotPanics(t, h.Close)
	require.NotPanics(t, h.Close)

	_, open := <-h.Signal
	assert.False(t, open, "Signal channel still open after Close")
	_, open = <-h.PeerJoined
	assert.False(t, open, "PeerJoined channel still open after Close")
}
