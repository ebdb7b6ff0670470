package worldmanager

import (
	"sync"
	"time"

	"replicon/wire"
)

// keepaliveState tracks liveness of one peer connection: it schedules
// outgoing heartbeats and records the last time anything was heard
// from the peer, independent of whether application traffic is
// flowing (a quiet but alive connection still needs a heartbeat).
type keepaliveState struct {
	mu         sync.Mutex
	interval   time.Duration
	lastSent   time.Time
	lastHeard  time.Time
	pingSentAt time.Time
	rtt        time.Duration
}

func newKeepaliveState(interval time.Duration) *keepaliveState {
	return &keepaliveState{interval: interval}
}

// due reports whether a heartbeat should be sent now.
func (k *keepaliveState) due(now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.lastSent.IsZero() {
		return true
	}
	return now.Sub(k.lastSent) >= k.interval
}

func (k *keepaliveState) markSent(now time.Time) {
	k.mu.Lock()
	k.lastSent = now
	k.mu.Unlock()
}

func (k *keepaliveState) onHeartbeat() {
	k.mu.Lock()
	k.lastHeard = time.Now()
	k.mu.Unlock()
}

// markPingSent records that a Ping went out at now, the sample a
// matching Pong's round trip is measured against.
func (k *keepaliveState) markPingSent(now time.Time) {
	k.mu.Lock()
	k.pingSentAt = now
	k.mu.Unlock()
}

func (k *keepaliveState) onPong() {
	k.mu.Lock()
	now := time.Now()
	k.lastHeard = now
	if !k.pingSentAt.IsZero() {
		k.rtt = now.Sub(k.pingSentAt)
		k.pingSentAt = time.Time{}
	}
	k.mu.Unlock()
}

// LastHeard returns the last time a heartbeat or pong was received
// from the peer, the zero Time if none ever was.
func (k *keepaliveState) LastHeard() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastHeard
}

// RTT returns the most recently measured Ping/Pong round trip, or the
// heartbeat interval as a bootstrap estimate before the first one
// completes: a connection's first few ticks have no sample to work from.
func (k *keepaliveState) RTT() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.rtt == 0 {
		return k.interval
	}
	return k.rtt
}

func (m *WorldManager) sendHeartbeat() error {
	now := time.Now()
	frame := wire.Frame{Type: wire.PacketHeartbeat, PacketIndex: 0}
	if err := m.transport.Send(m.peerAddr, wire.EncodeFrame(frame)); err != nil {
		return err
	}
	m.keepalive.markSent(now)
	return nil
}

func (m *WorldManager) sendPong() error {
	frame := wire.Frame{Type: wire.PacketPong, PacketIndex: 0}
	return m.transport.Send(m.peerAddr, wire.EncodeFrame(frame))
}

// sendPing probes the peer for a round-trip latency sample, feeding
// the rtt parameter CollectMessages scales its retransmit threshold by.
func (m *WorldManager) sendPing() error {
	frame := wire.Frame{Type: wire.PacketPing, PacketIndex: 0}
	if err := m.transport.Send(m.peerAddr, wire.EncodeFrame(frame)); err != nil {
		return err
	}
	m.keepalive.markPingSent(time.Now())
	return nil
}
