package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB is enough for SDP
	// payloads with every candidate attached.
	maxMessageSize = 64 * 1024
)

// Client wraps a single websocket connection (one peer) on the relay side.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	// RoomCode is the code of the room the client currently occupies.
	// It is a lookup key into the hub's room map, never an owning
	// reference, so teardown order stays simple.
	RoomCode string

	// Send is the buffered channel of outbound messages. The hub writes
	// to it; WritePump drains it onto the socket.
	Send chan *Message
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// One ReadPump goroutine runs per connection and is the only reader on it.
// A read error of any kind, including abrupt socket close, unregisters the
// client, which the hub treats identically to an explicit leave.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Debug("websocket read failed")
			}
			break
		}

		msg.client = c
		c.Hub.Inbound <- &msg
	}
}

// WritePump pumps messages from the hub to the websocket connection and
// keeps the connection alive with periodic pings. One WritePump goroutine
// runs per connection and is the only writer on it.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				logrus.WithError(err).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
