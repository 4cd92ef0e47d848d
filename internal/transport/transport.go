// Package transport provides the direct, ordered, reliable message channel
// that carries all gameplay traffic once signaling completes. The session
// layer depends only on the Transport interface; the production
// implementation is a WebRTC data channel.
package transport

import (
	"errors"
	"sync"
)

// ErrClosed indicates a send on a transport that has already closed.
var ErrClosed = errors.New("transport closed")

// Transport is an ordered, reliable, bidirectional message channel with
// preserved message boundaries. Closed is terminal; the close handler
// fires exactly once regardless of which side initiated it.
type Transport interface {
	Send(data []byte) error
	OnMessage(handler func(data []byte))
	OnClose(handler func())
	Close() error
}

// pipeEnd is one side of an in-memory transport pair. It mirrors the data
// channel's delivery guarantees (ordered, exactly-once, boundary-
// preserving) so session logic can be tested without a network.
type pipeEnd struct {
	mu        sync.Mutex
	peer      *pipeEnd
	onMessage func([]byte)
	onClose   func()
	buffered  [][]byte
	closed    bool
}

// Pipe returns two connected in-memory transports. Data written to one end
// is delivered to the other in order.
func Pipe() (Transport, Transport) {
	a := &pipeEnd{}
	b := &pipeEnd{}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *pipeEnd) Send(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	peer := p.peer
	p.mu.Unlock()

	return peer.deliver(append([]byte(nil), data...))
}

func (p *pipeEnd) deliver(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	handler := p.onMessage
	if handler == nil {
		// No consumer yet; hold the message until OnMessage is set.
		p.buffered = append(p.buffered, data)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	handler(data)
	return nil
}

func (p *pipeEnd) OnMessage(handler func([]byte)) {
	p.mu.Lock()
	p.onMessage = handler
	pending := p.buffered
	p.buffered = nil
	p.mu.Unlock()

	for _, data := range pending {
		handler(data)
	}
}

func (p *pipeEnd) OnClose(handler func()) {
	p.mu.Lock()
	p.onClose = handler
	p.mu.Unlock()
}

func (p *pipeEnd) Close() error {
	p.closeLocal()
	p.peer.closeLocal()
	return nil
}

func (p *pipeEnd) closeLocal() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handler := p.onClose
	p.mu.Unlock()

	if handler != nil {
		handler()
	}
}
