package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/tomgun/saktris-game-sub005/internal/config"
	"github.com/tomgun/saktris-game-sub005/internal/signaling"
)

// Compile-time interface check.
var _ Transport = (*Peer)(nil)

// connectTimeout is the maximum time for the data channel to open after
// negotiation starts.
const connectTimeout = 30 * time.Second

// dataChannelLabel names the single ordered reliable channel that carries
// all gameplay messages.
const dataChannelLabel = "saktris"

// ErrConnectTimeout indicates the transport never reached Connected.
var ErrConnectTimeout = errors.New("timeout waiting for peer connection")

// Peer is a WebRTC peer connection carrying one gameplay data channel.
// Negotiation (offer/answer then trickle ICE) runs over the signaling
// client; after Connected the relay is no longer needed.
type Peer struct {
	conn      *webrtc.PeerConnection
	client    *signaling.Client
	handler   *signaling.Handler
	offerer   bool
	connected chan struct{}
	done      chan struct{}

	mu sync.Mutex
	dc *webrtc.DataChannel
	// candidates that arrived before the remote description was set.
	pending   []webrtc.ICECandidateInit
	onMessage func([]byte)
	onClose   func()
	closeOnce sync.Once
	closed    bool
}

// NewPeer creates a WebRTC peer. The offerer (the room host) creates the
// data channel and sends the offer; the answerer waits for both.
func NewPeer(cfg *config.Config, client *signaling.Client, handler *signaling.Handler, offerer bool) (*Peer, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		conn:      pc,
		client:    client,
		handler:   handler,
		offerer:   offerer,
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate, _ := json.Marshal(c.ToJSON())
		p.client.SendMessage(&signaling.Message{
			Type:       signaling.MessageTypeSignal,
			SignalType: "candidate",
			Candidate:  candidate,
		})
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			p.fireClose()
		}
	})

	if offerer {
		dc, err := pc.CreateDataChannel(dataChannelLabel, orderedReliable())
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		p.bindChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != dataChannelLabel {
				return
			}
			p.bindChannel(dc)
		})
	}

	return p, nil
}

// orderedReliable configures the channel for in-order exactly-once
// delivery: no retransmit limit, no lifetime cap.
func orderedReliable() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{Ordered: &ordered}
}

// bindChannel attaches the gameplay channel handlers.
func (p *Peer) bindChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		close(p.connected)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.mu.Lock()
		handler := p.onMessage
		p.mu.Unlock()
		if handler != nil {
			handler(msg.Data)
		}
	})

	dc.OnClose(func() {
		p.fireClose()
	})
}

// Connect runs negotiation to completion: the offerer sends the offer and
// waits for the answer, the answerer waits for the offer and replies. It
// returns once the data channel is open or the timeout expires.
func (p *Peer) Connect() error {
	go p.listenSignals()

	if p.offerer {
		offer, err := p.conn.CreateOffer(nil)
		if err != nil {
			return fmt.Errorf("create offer: %w", err)
		}
		if err := p.conn.SetLocalDescription(offer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}

		// Trickle ICE: send the offer immediately, candidates follow
		// via OnICECandidate.
		local := p.conn.LocalDescription()
		p.client.SendMessage(&signaling.Message{
			Type:       signaling.MessageTypeSignal,
			SignalType: local.Type.String(),
			SDP:        local.SDP,
		})
	}

	select {
	case <-p.connected:
		return nil
	case <-p.done:
		return ErrClosed
	case <-time.After(connectTimeout):
		return ErrConnectTimeout
	}
}

// listenSignals consumes negotiation payloads until the peer closes.
// Candidates keep trickling in after the channel opens, so this runs for
// the whole connection lifetime.
func (p *Peer) listenSignals() {
	for {
		select {
		case sig := <-p.handler.Signal:
			if sig == nil {
				// Channel closed: signaling is gone for good.
				return
			}
			if err := p.handleSignal(sig); err != nil {
				// A malformed payload cannot be recovered mid-negotiation.
				p.fireClose()
				return
			}

		case <-p.done:
			return
		}
	}
}

// handleSignal applies one negotiation payload. Candidates arriving before
// the remote description are queued and flushed once it lands, which is
// what tolerating candidate reordering amounts to.
func (p *Peer) handleSignal(sig *signaling.SignalPayload) error {
	switch sig.Type {
	case "offer":
		if p.offerer {
			return fmt.Errorf("unexpected offer on offering side")
		}
		if err := p.conn.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sig.SDP,
		}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		if err := p.flushCandidates(); err != nil {
			return err
		}

		answer, err := p.conn.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.conn.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}

		local := p.conn.LocalDescription()
		p.client.SendMessage(&signaling.Message{
			Type:       signaling.MessageTypeSignal,
			SignalType: local.Type.String(),
			SDP:        local.SDP,
		})
		return nil

	case "answer":
		if !p.offerer {
			return fmt.Errorf("unexpected answer on answering side")
		}
		if err := p.conn.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  sig.SDP,
		}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		return p.flushCandidates()

	case "candidate":
		var ice webrtc.ICECandidateInit
		if err := json.Unmarshal(sig.Candidate, &ice); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}

		p.mu.Lock()
		if p.conn.RemoteDescription() == nil {
			p.pending = append(p.pending, ice)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		if err := p.conn.AddICECandidate(ice); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unexpected signal type: %s", sig.Type)
	}
}

// flushCandidates applies candidates that arrived before the remote
// description.
func (p *Peer) flushCandidates() error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ice := range pending {
		if err := p.conn.AddICECandidate(ice); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}

// Send transmits one gameplay frame over the data channel.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	closed := p.closed
	p.mu.Unlock()

	if closed || dc == nil {
		return ErrClosed
	}
	return dc.Send(data)
}

// OnMessage registers the inbound frame handler.
func (p *Peer) OnMessage(handler func([]byte)) {
	p.mu.Lock()
	p.onMessage = handler
	p.mu.Unlock()
}

// OnClose registers the close handler. It fires exactly once.
func (p *Peer) OnClose(handler func()) {
	p.mu.Lock()
	p.onClose = handler
	p.mu.Unlock()
}

// Close tears the connection down. Idempotent.
func (p *Peer) Close() error {
	p.fireClose()
	return p.conn.Close()
}

func (p *Peer) fireClose() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		handler := p.onClose
		p.mu.Unlock()

		close(p.done)
		if handler != nil {
			handler()
		}
	})
}

// newPeerConnection centralizes ICE server configuration.
func newPeerConnection(cfg *config.Config) (*webrtc.PeerConnection, error) {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}
