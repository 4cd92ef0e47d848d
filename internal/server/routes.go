// Package server wires the relay hub into HTTP: the websocket upgrade
// endpoint and a health check.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tomgun/saktris-game-sub005/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Room codes are the access control here; the relay carries only
	// opaque negotiation payloads, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter builds the relay's HTTP routes around the given hub.
func NewRouter(hub *relay.Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", handleHealth).Methods("GET")
	r.HandleFunc("/ws", serveWs(hub)).Methods("GET")
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling relay is healthy."))
}

// serveWs upgrades the connection and hands it to the hub.
func serveWs(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := &relay.Client{
			Hub:  hub,
			Conn: conn,
			Send: make(chan *relay.Message, 256),
		}

		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
