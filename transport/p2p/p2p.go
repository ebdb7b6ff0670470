// Package p2p is a peer-discovery and handshake layer over
// go-libp2p: a libp2p host advertises itself via mDNS and dials
// bootstrap peers the way core/network.go's NewNode/HandlePeerFound/
// DialSeed do, then exposes the negotiated streams as a
// replicon.Transport so the reliable channel never has to know a
// connection came from discovery rather than static configuration.
package p2p

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"replicon/pkg/synclog"
)

// ProtocolID is the libp2p stream protocol negotiated once per peer,
// analogous to the teacher's gossipsub topic join but for a direct
// point-to-point stream rather than a broadcast topic.
const ProtocolID = "/replicon/1.0.0"

// Transport is a replicon.Transport over libp2p streams. Peer
// addresses are libp2p multiaddr+peer-id strings
// ("/ip4/.../tcp/.../p2p/<id>"), the same shape core/network.go's
// DialSeed accepts.
type Transport struct {
	log  *logrus.Logger
	host host.Host

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	streams map[peer.ID]network.Stream

	incoming chan datagram
}

type datagram struct {
	from string
	body []byte
}

// Listen creates and bootstraps a libp2p host, enabling mDNS discovery
// the way NewNode does, and returns a Transport ready to Send/Receive.
func Listen(listenAddr, discoveryTag string, bootstrapPeers []string, log *logrus.Logger) (*Transport, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}

	t := &Transport{
		log:      synclog.Or(log),
		host:     h,
		ctx:      ctx,
		cancel:   cancel,
		streams:  make(map[peer.ID]network.Stream),
		incoming: make(chan datagram, 256),
	}

	h.SetStreamHandler(ProtocolID, t.handleStream)
	mdns.NewMdnsService(h, discoveryTag, t)

	for _, addr := range bootstrapPeers {
		if err := t.dialSeed(addr); err != nil {
			t.log.WithError(err).Warn("replicon: p2p bootstrap dial failed")
		}
	}

	return t, nil
}

// HandlePeerFound implements mdns.Notifee: connect to a newly
// discovered peer, ignoring ourselves and peers we already hold a
// stream to.
func (t *Transport) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == t.host.ID() {
		return
	}
	t.mu.Lock()
	_, exists := t.streams[info.ID]
	t.mu.Unlock()
	if exists {
		return
	}
	if err := t.host.Connect(t.ctx, info); err != nil {
		t.log.WithError(err).Warn("replicon: p2p connect to discovered peer failed")
		return
	}
	if _, err := t.openStream(info.ID); err != nil {
		t.log.WithError(err).Warn("replicon: p2p stream open to discovered peer failed")
	}
}

func (t *Transport) dialSeed(addrStr string) error {
	info, err := peer.AddrInfoFromString(addrStr)
	if err != nil {
		return fmt.Errorf("invalid addr %s: %w", addrStr, err)
	}
	if err := t.host.Connect(t.ctx, *info); err != nil {
		return fmt.Errorf("connect %s: %w", addrStr, err)
	}
	_, err = t.openStream(info.ID)
	return err
}

func (t *Transport) openStream(id peer.ID) (network.Stream, error) {
	s, err := t.host.NewStream(t.ctx, id, ProtocolID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.streams[id] = s
	t.mu.Unlock()
	go t.readLoop(id, s)
	return s, nil
}

func (t *Transport) handleStream(s network.Stream) {
	id := s.Conn().RemotePeer()
	t.mu.Lock()
	t.streams[id] = s
	t.mu.Unlock()
	go t.readLoop(id, s)
}

// readLoop reads newline-delimited frames: libp2p streams are reliable
// byte streams, not message-oriented, so framing is this package's
// responsibility rather than the underlying transport's.
func (t *Transport) readLoop(id peer.ID, s network.Stream) {
	r := bufio.NewReader(s)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.mu.Lock()
			delete(t.streams, id)
			t.mu.Unlock()
			return
		}
		body := decodeFrame(strings.TrimSuffix(line, "\n"))
		select {
		case t.incoming <- datagram{from: addrString(id), body: body}:
		case <-t.ctx.Done():
			return
		}
	}
}

func addrString(id peer.ID) string { return "/p2p/" + id.String() }

// encodeFrame/decodeFrame base64-encode a datagram so it can ride a
// newline-delimited text framing over libp2p's raw byte stream.
func encodeFrame(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decodeFrame(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Send writes b to addr's stream, opening one if necessary. addr must
// be a libp2p multiaddr+peer-id string reachable via the host's
// peerstore (typically one this Transport already connected to via
// discovery or DialSeed).
func (t *Transport) Send(addr string, b []byte) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("p2p: invalid addr %s: %w", addr, err)
	}
	t.mu.Lock()
	s, ok := t.streams[info.ID]
	t.mu.Unlock()
	if !ok {
		if err := t.host.Connect(t.ctx, *info); err != nil {
			return err
		}
		s, err = t.openStream(info.ID)
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(s, encodeFrame(b)+"\n")
	return err
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

// Close tears down every stream and the libp2p host.
func (t *Transport) Close() error {
	t.cancel()
	t.mu.Lock()
	for _, s := range t.streams {
		_ = s.Close()
	}
	t.mu.Unlock()
	return t.host.Close()
}
