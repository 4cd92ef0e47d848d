package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRoomTTL is how long a room lives from creation. The deadline is
// fixed at create time and not refreshed by activity, so sessions must
// finish negotiating well inside the window.
const DefaultRoomTTL = 30 * time.Minute

// sweepInterval is how often the hub scans for expired rooms.
const sweepInterval = time.Minute

// Hub owns every live room and client on the relay. All room state is
// mutated from the single Run goroutine, which makes join a naturally
// atomic check-and-set: two guests can never race into the same slot.
type Hub struct {
	// Rooms maps room codes to live rooms.
	Rooms map[string]*Room

	// Register carries freshly upgraded connections.
	Register chan *Client

	// Unregister carries connections whose sockets closed.
	Unregister chan *Client

	// Inbound carries parsed client messages for processing.
	Inbound chan *Message

	roomTTL time.Duration

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewHub creates a hub with the given room lifetime. A non-positive ttl
// selects DefaultRoomTTL.
func NewHub(roomTTL time.Duration) *Hub {
	if roomTTL <= 0 {
		roomTTL = DefaultRoomTTL
	}
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Message),
		roomTTL:    roomTTL,
		now:        time.Now,
	}
}

// Run is the hub's single processing loop. It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			// Not in a room yet; the client must send create or join
			// first.
			logrus.WithField("addr", client.Conn.RemoteAddr()).Info("client connected")

		case client := <-h.Unregister:
			logrus.WithField("addr", client.Conn.RemoteAddr()).Info("client disconnected")
			h.removeClient(client)
			close(client.Send)

		case msg := <-h.Inbound:
			h.handleMessage(msg)

		case <-ticker.C:
			h.sweepExpired()
		}
	}
}

// handleMessage dispatches one client message.
func (h *Hub) handleMessage(msg *Message) {
	switch msg.Type {
	case TypeCreate:
		h.handleCreate(msg.client)
	case TypeJoin:
		h.handleJoin(msg.client, msg.Code)
	case TypeLeave:
		h.removeClient(msg.client)
	case TypeSignal:
		h.handleSignal(msg)
	default:
		logrus.WithField("type", msg.Type).Warn("unknown message type")
	}
}

// handleCreate allocates a room with a fresh unique code and replies
// created{code}.
func (h *Hub) handleCreate(c *Client) {
	if c.RoomCode != "" {
		c.Send <- &Message{Type: TypeError, Text: "already in a room"}
		return
	}

	code, err := h.uniqueCode()
	if err != nil {
		logrus.WithError(err).Error("room creation failed")
		c.Send <- &Message{Type: TypeError, Text: err.Error()}
		return
	}

	now := h.now()
	h.Rooms[code] = &Room{
		Code:      code,
		Host:      c,
		CreatedAt: now,
		ExpiresAt: now.Add(h.roomTTL),
	}
	c.RoomCode = code

	logrus.WithFields(logrus.Fields{
		"code": code,
		"ttl":  h.roomTTL,
	}).Info("room created")

	c.Send <- &Message{Type: TypeCreated, Code: code}
}

// uniqueCode generates a code not held by any live room, retrying on
// collision up to the bound.
func (h *Hub) uniqueCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := randomCode()
		if _, taken := h.Rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// handleJoin attaches c as the guest of an existing room. Exactly one join
// succeeds per room; the check and the slot write happen together inside
// the hub loop.
func (h *Hub) handleJoin(c *Client, code string) {
	if c.RoomCode != "" {
		c.Send <- &Message{Type: TypeError, Text: "already in a room"}
		return
	}

	code = NormalizeCode(code)
	room, ok := h.Rooms[code]
	if ok && room.Expired(h.now()) {
		h.destroyRoom(room)
		ok = false
	}
	if !ok {
		logrus.WithField("code", code).Info("join failed: room not found")
		c.Send <- &Message{Type: TypeError, Text: "room not found"}
		return
	}

	if room.Guest != nil {
		logrus.WithField("code", code).Info("join failed: room is full")
		c.Send <- &Message{Type: TypeError, Text: "room is full"}
		return
	}

	room.Guest = c
	c.RoomCode = code

	logrus.WithField("code", code).Info("guest joined room")

	room.Host.Send <- &Message{Type: TypePeerJoined}
	c.Send <- &Message{Type: TypeJoined, Code: code}
}

// handleSignal forwards an opaque negotiation payload to the other room
// occupant unchanged.
func (h *Hub) handleSignal(msg *Message) {
	c := msg.client

	if c.RoomCode == "" {
		c.Send <- &Message{Type: TypeError, Text: "not in a room"}
		return
	}

	room, ok := h.Rooms[c.RoomCode]
	if !ok {
		c.Send <- &Message{Type: TypeError, Text: "room not found"}
		return
	}

	target := room.Other(c)
	if target == nil {
		c.Send <- &Message{Type: TypeError, Text: "peer not connected"}
		return
	}

	target.Send <- &Message{
		Type:       TypeSignal,
		SignalType: msg.SignalType,
		SDP:        msg.SDP,
		Candidate:  msg.Candidate,
	}
}

// removeClient handles both explicit leave and abrupt disconnect. A host
// departure destroys the room; a guest departure only vacates the slot.
// The remaining peer, if any, is notified exactly once.
func (h *Hub) removeClient(c *Client) {
	if c.RoomCode == "" {
		return
	}

	room, ok := h.Rooms[c.RoomCode]
	c.RoomCode = ""
	if !ok {
		return
	}

	if c == room.Host {
		if room.Guest != nil {
			room.Guest.RoomCode = ""
			room.Guest.Send <- &Message{Type: TypePeerLeft}
		}
		delete(h.Rooms, room.Code)
		logrus.WithField("code", room.Code).Info("room destroyed: host left")
		return
	}

	if c == room.Guest {
		room.Guest = nil
		room.Host.Send <- &Message{Type: TypePeerLeft}
		logrus.WithField("code", room.Code).Info("guest left room")
	}
}

// sweepExpired destroys rooms past their fixed deadline.
func (h *Hub) sweepExpired() {
	now := h.now()
	for code, room := range h.Rooms {
		if room.Expired(now) {
			logrus.WithField("code", code).Info("room expired")
			h.destroyRoom(room)
		}
	}
}

// destroyRoom deletes a room and detaches its occupants.
func (h *Hub) destroyRoom(room *Room) {
	for _, c := range []*Client{room.Host, room.Guest} {
		if c == nil {
			continue
		}
		c.RoomCode = ""
		c.Send <- &Message{Type: TypeError, Text: "room expired"}
	}
	delete(h.Rooms, room.Code)
}
