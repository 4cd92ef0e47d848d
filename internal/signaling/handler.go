package signaling

import "sync"

// Handler routes incoming relay messages to typed channels, one per event
// the session layer reacts to.
type Handler struct {
	client      *Client
	RoomCreated chan string
	RoomJoined  chan string
	PeerJoined  chan struct{}
	PeerLeft    chan struct{}
	Signal      chan *SignalPayload
	Error       chan string
	stopped     chan struct{}
	closeOnce   sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:      client,
		RoomCreated: make(chan string, 1),
		RoomJoined:  make(chan string, 1),
		PeerJoined:  make(chan struct{}, 1),
		PeerLeft:    make(chan struct{}, 1),
		Signal:      make(chan *SignalPayload, 32),
		Error:       make(chan string, 1),
		stopped:     make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// when the underlying connection closes.
func (h *Handler) Start() {
	defer close(h.stopped)

	for msg := range h.client.Incoming() {

		switch msg.Type {

		case MessageTypeCreated:
			h.RoomCreated <- msg.Code

		case MessageTypeJoined:
			h.RoomJoined <- msg.Code

		case MessageTypePeerJoined:
			h.PeerJoined <- struct{}{}

		case MessageTypePeerLeft:
			h.PeerLeft <- struct{}{}

		case MessageTypeSignal:
			h.Signal <- &SignalPayload{
				Type:      msg.SignalType,
				SDP:       msg.SDP,
				Candidate: msg.Candidate,
			}

		case MessageTypeError:
			h.handleError(msg)

		default:

		}
	}
}

func (h *Handler) handleError(msg *Message) {
	text := msg.Text
	if text == "" {
		text = "unknown error from relay"
	}
	h.Error <- text
}

// Close closes all handler channels. Close the client first: it waits for
// the routing loop to drain so no channel is closed mid-send.
func (h *Handler) Close() {
	<-h.stopped

	h.closeOnce.Do(func() {
		close(h.RoomCreated)
		close(h.RoomJoined)
		close(h.PeerJoined)
		close(h.PeerLeft)
		close(h.Signal)
		close(h.Error)
	})
}
