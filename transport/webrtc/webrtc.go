// Package webrtc is a replicon.Transport over a WebRTC unreliable,
// unordered data channel (spec §6's "a WebRTC data channel" option),
// built on github.com/pion/webrtc/v4. Establishing a PeerConnection
// requires exchanging SDP offers/answers and ICE candidates out of
// band; Signaler abstracts that exchange so this package stays
// agnostic to whatever side channel carries it (the p2p package's
// libp2p stream, a WebSocket bootstrap server, manual copy/paste).
package webrtc

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"replicon/pkg/synclog"
)

// Signaler exchanges one SDP message with a remote peer identified by
// addr and returns the peer's reply.
type Signaler interface {
	Exchange(addr string, localSDP []byte) (remoteSDP []byte, err error)
}

// sdpPayload is the wire shape exchanged by a Signaler.
type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Transport holds one unreliable, unordered data channel per peer
// address, each backed by its own PeerConnection.
type Transport struct {
	log      *logrus.Logger
	signaler Signaler

	mu       sync.Mutex
	channels map[string]*webrtc.DataChannel
	incoming chan datagram
}

type datagram struct {
	from string
	body []byte
}

// New returns a Transport that uses signaler to negotiate new peer
// connections on demand.
func New(signaler Signaler, log *logrus.Logger) *Transport {
	return &Transport{
		log:      synclog.Or(log),
		signaler: signaler,
		channels: make(map[string]*webrtc.DataChannel),
		incoming: make(chan datagram, 256),
	}
}

func dataChannelConfig() *webrtc.DataChannelInit {
	ordered := false
	maxRetransmits := uint16(0)
	return &webrtc.DataChannelInit{Ordered: &ordered, MaxRetransmits: &maxRetransmits}
}

// connect negotiates a new PeerConnection + unreliable data channel to
// addr via the configured Signaler, following pion's offer/SetLocal/
// exchange/SetRemote handshake shape.
func (t *Transport) connect(addr string) (*webrtc.DataChannel, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	dc, err := pc.CreateDataChannel("replicon", dataChannelConfig())
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	ready := make(chan struct{})
	dc.OnOpen(func() { close(ready) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.deliver(addr, msg.Data)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, err
	}

	localBytes, err := json.Marshal(sdpPayload{Type: offer.Type.String(), SDP: offer.SDP})
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	remoteBytes, err := t.signaler.Exchange(addr, localBytes)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	var answer sdpPayload
	if err := json.Unmarshal(remoteBytes, &answer); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	}); err != nil {
		_ = pc.Close()
		return nil, err
	}

	<-ready
	t.mu.Lock()
	t.channels[addr] = dc
	t.mu.Unlock()
	return dc, nil
}

func (t *Transport) deliver(from string, body []byte) {
	cp := make([]byte, len(body))
	copy(cp, body)
	t.incoming <- datagram{from: from, body: cp}
}

// Send writes b to addr's data channel, negotiating a new
// PeerConnection first if none exists yet.
func (t *Transport) Send(addr string, b []byte) error {
	t.mu.Lock()
	dc, ok := t.channels[addr]
	t.mu.Unlock()
	if !ok {
		var err error
		dc, err = t.connect(addr)
		if err != nil {
			return err
		}
	}
	return dc.Send(b)
}

// Receive returns the next datagram received from any peer, or
// ok=false if none is currently buffered.
func (t *Transport) Receive() (string, []byte, bool, error) {
	select {
	case d := <-t.incoming:
		return d.from, d.body, true, nil
	default:
		return "", nil, false, nil
	}
}

// Close tears down every negotiated data channel.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, dc := range t.channels {
		_ = dc.Close()
	}
	t.channels = make(map[string]*webrtc.DataChannel)
	return nil
}
