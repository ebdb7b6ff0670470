// Package memory is an in-process replicon.Transport used by the CLI's
// bench subcommand and by tests that need two peers talking without a
// real socket.
package memory

import "sync"

// Hub is a routing table of in-memory transports; it routes by the
// addr passed to Send, so more than two can share one Hub.
type Hub struct {
	mu       sync.Mutex
	inboxes  map[string]*Transport
}

// NewHub returns an empty routing hub. Register endpoints with New.
func NewHub() *Hub {
	return &Hub{inboxes: make(map[string]*Transport)}
}

// Transport is one endpoint registered on a Hub, identified by addr.
type Transport struct {
	addr string
	hub  *Hub

	mu    sync.Mutex
	queue []datagram
}

type datagram struct {
	from string
	body []byte
}

// New registers a new endpoint named addr on hub and returns its
// Transport handle. Two endpoints on the same Hub can Send to each
// other by address.
func New(hub *Hub, addr string) *Transport {
	t := &Transport{addr: addr, hub: hub}
	hub.mu.Lock()
	hub.inboxes[addr] = t
	hub.mu.Unlock()
	return t
}

// Send delivers b to addr's inbox if it is registered on the same hub,
// silently dropping it otherwise (an unreachable peer looks identical
// to a lost packet to the rest of the stack).
func (t *Transport) Send(addr string, b []byte) error {
	t.hub.mu.Lock()
	dst, ok := t.hub.inboxes[addr]
	t.hub.mu.Unlock()
	if !ok {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	dst.mu.Lock()
	dst.queue = append(dst.queue, datagram{from: t.addr, body: cp})
	dst.mu.Unlock()
	return nil
}

// Receive pops the oldest queued datagram, or ok=false if none is
// waiting.
func (t *Transport) Receive() (string, []byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return "", nil, false, nil
	}
	d := t.queue[0]
	t.queue = t.queue[1:]
	return d.from, d.body, true, nil
}

// Close deregisters the endpoint from its hub.
func (t *Transport) Close() error {
	t.hub.mu.Lock()
	delete(t.hub.inboxes, t.addr)
	t.hub.mu.Unlock()
	return nil
}
