// Package diffmask implements the per-component dirty-field bitmask (C2):
// a packed bitset of fixed length per component kind, one MutReceiver per
// peer address sharing a single MutSender-broadcast channel, each
// protected by a reader/writer lock that writers hold only long enough to
// set a single bit.
package diffmask

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"

	"replicon/pkg/synerr"
)

// DiffMask is a packed bitset of fixed length, one per component kind.
type DiffMask struct {
	bits *bitset.BitSet
	n    uint
}

// New returns a DiffMask with n bits, all clear.
func New(n uint) *DiffMask {
	return &DiffMask{bits: bitset.New(n), n: n}
}

// SetBit marks field i dirty.
func (m *DiffMask) SetBit(i uint) { m.bits.Set(i) }

// Test reports whether field i is marked dirty.
func (m *DiffMask) Test(i uint) bool { return m.bits.Test(i) }

// Clear resets every bit.
func (m *DiffMask) Clear() { m.bits = bitset.New(m.n) }

// Or ORs other's bits into m in place.
func (m *DiffMask) Or(other *DiffMask) {
	if other == nil {
		return
	}
	m.bits.InPlaceUnion(other.bits)
}

// IsClear reports whether no bit is set.
func (m *DiffMask) IsClear() bool { return m.bits.None() }

// Clone returns an independent copy of m.
func (m *DiffMask) Clone() *DiffMask {
	c := New(m.n)
	c.bits.InPlaceUnion(m.bits)
	return c
}

// Len returns the field count this mask was sized for.
func (m *DiffMask) Len() uint { return m.n }

// Bytes returns m's wire encoding: bitset's own compact binary form.
func (m *DiffMask) Bytes() []byte {
	b, _ := m.bits.MarshalBinary()
	return b
}

// MaskFromBytes decodes a DiffMask from its Bytes encoding, which
// carries its own length.
func MaskFromBytes(b []byte) (*DiffMask, error) {
	bs := &bitset.BitSet{}
	if err := bs.UnmarshalBinary(b); err != nil {
		return nil, synerr.Wrap(synerr.KindWire, "diffmask: decode mask", err)
	}
	return &DiffMask{bits: bs, n: bs.Len()}, nil
}

// goroutineID extracts the calling goroutine's numeric id by parsing the
// small header runtime.Stack always emits ("goroutine 123 [running]:...").
// Used only on the rare reentrancy-detection path below, never the hot
// single-bit-set path.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// MutReceiver holds one peer's view of a component's dirty-field mask.
// Receivers are Send+Sync; writers (MutSender broadcasts) hold the lock
// only for a single bit-set, so contention never blocks on the hot path.
// A single goroutine re-entering MarkDirty while it already holds the
// write lock is reported as synerr.ErrRwLockReentrant instead of
// deadlocking.
type MutReceiver struct {
	mu    sync.RWMutex
	owner atomic.Int64
	mask  *DiffMask
}

func newMutReceiver(fieldCount uint) *MutReceiver {
	return &MutReceiver{mask: New(fieldCount)}
}

// MarkDirty sets bit i in this receiver's mask.
func (r *MutReceiver) MarkDirty(i uint) error {
	gid := goroutineID()
	if gid != 0 && r.owner.Load() == gid {
		return synerr.ErrRwLockReentrant
	}
	r.mu.Lock()
	r.owner.Store(gid)
	r.mask.SetBit(i)
	r.owner.Store(0)
	r.mu.Unlock()
	return nil
}

// MaskRead returns a snapshot copy of the receiver's current mask.
func (r *MutReceiver) MaskRead() *DiffMask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mask.Clone()
}

// OrMask ORs other into the receiver's mask in place, used by the host
// world manager to restore bits for fields that went out in a dropped
// packet.
func (r *MutReceiver) OrMask(other *DiffMask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mask.Or(other)
}

// ClearMask resets the receiver's mask, typically after packing its
// dirty fields into an outgoing update.
func (r *MutReceiver) ClearMask() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mask.Clear()
}

// IsClear reports whether the receiver currently has no dirty fields.
func (r *MutReceiver) IsClear() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mask.IsClear()
}

// Channel is a mutation channel (C2): any number of MutSenders broadcast
// field-dirty notifications to every live MutReceiver, one per peer
// address, manufactured through NewReceiver.
type Channel struct {
	fieldCount uint
	mu         sync.RWMutex
	receivers  map[string]*MutReceiver
}

// NewChannel returns a mutation channel for a component with fieldCount
// diff-maskable fields.
func NewChannel(fieldCount uint) *Channel {
	return &Channel{fieldCount: fieldCount, receivers: make(map[string]*MutReceiver)}
}

// NewReceiver manufactures (or returns the existing) MutReceiver for
// peerAddr.
func (c *Channel) NewReceiver(peerAddr string) *MutReceiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receivers[peerAddr]; ok {
		return r
	}
	r := newMutReceiver(c.fieldCount)
	c.receivers[peerAddr] = r
	return r
}

// Receiver returns the receiver for peerAddr, if any.
func (c *Channel) Receiver(peerAddr string) (*MutReceiver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.receivers[peerAddr]
	return r, ok
}

// RemoveReceiver tears down peerAddr's receiver, e.g. on component
// removal or peer disconnect.
func (c *Channel) RemoveReceiver(peerAddr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.receivers, peerAddr)
}

// MutSender broadcasts a dirty field index to every live receiver on its
// channel. Any number of senders may share one channel; property
// mutators on a component are handed a MutSender each.
type MutSender struct {
	ch *Channel
}

// NewSender returns a sender broadcasting onto c.
func (c *Channel) NewSender() *MutSender {
	return &MutSender{ch: c}
}

// MarkDirty broadcasts field i dirty to every live receiver, continuing
// past any individual receiver's error (e.g. ErrRwLockReentrant) so one
// misbehaving reader cannot block delivery to the others.
func (s *MutSender) MarkDirty(i uint) error {
	s.ch.mu.RLock()
	defer s.ch.mu.RUnlock()
	var firstErr error
	for _, r := range s.ch.receivers {
		if err := r.MarkDirty(i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
