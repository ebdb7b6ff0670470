// Package authstatus implements C9: EntityAuthChannel, the shared
// observable cell that holds an entity's authority status so that code
// on both sides of a delegation (the owning host and the delegate
// observing it) can read or update the same state without each side
// keeping an independent, driftable copy. Access is mediated through
// two handle types, EntityAuthAccessor (read-only) and
// EntityAuthMutator (read-write), both backed by the same lock.
package authstatus

import (
	"sync"

	"replicon"
	"replicon/pkg/synerr"
)

// Snapshot is a point-in-time copy of an EntityAuthChannel's state.
type Snapshot struct {
	HostType replicon.Owner
	Status   replicon.EntityAuthStatus
	Observer replicon.EntitySide
}

// EntityAuthChannel is the shared {host_type, status, observer} cell.
// A panic while the lock is held poisons the channel, mirroring the
// guarantee a poisoned mutex gives in languages where that is a
// first-class concept: every access after a poisoning panic fails fast
// with ErrAuthLockPoisoned instead of silently observing a torn update.
type EntityAuthChannel struct {
	mu       sync.Mutex
	poisoned bool
	hostType replicon.Owner
	status   replicon.EntityAuthStatus
	observer replicon.EntitySide
}

// New returns a channel seeded with the given initial state.
func New(hostType replicon.Owner, status replicon.EntityAuthStatus, observer replicon.EntitySide) *EntityAuthChannel {
	return &EntityAuthChannel{hostType: hostType, status: status, observer: observer}
}

func (c *EntityAuthChannel) withLock(fn func()) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		return synerr.ErrAuthLockPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			panic(r)
		}
	}()
	fn()
	return nil
}

// Accessor returns a read-only handle onto c.
func (c *EntityAuthChannel) Accessor() EntityAuthAccessor { return EntityAuthAccessor{ch: c} }

// Mutator returns a read-write handle onto c.
func (c *EntityAuthChannel) Mutator() EntityAuthMutator { return EntityAuthMutator{ch: c} }

// EntityAuthAccessor is a read-only handle onto an EntityAuthChannel.
type EntityAuthAccessor struct{ ch *EntityAuthChannel }

// Read returns a snapshot of the channel's current state, or
// ErrAuthLockPoisoned if a prior update panicked.
func (a EntityAuthAccessor) Read() (Snapshot, error) {
	var snap Snapshot
	err := a.ch.withLock(func() {
		snap = Snapshot{HostType: a.ch.hostType, Status: a.ch.status, Observer: a.ch.observer}
	})
	return snap, err
}

// EntityAuthMutator is a read-write handle onto an EntityAuthChannel.
type EntityAuthMutator struct{ ch *EntityAuthChannel }

// SetStatus updates the channel's authority status.
func (m EntityAuthMutator) SetStatus(s replicon.EntityAuthStatus) error {
	return m.ch.withLock(func() { m.ch.status = s })
}

// SetObserver updates which side is currently observing/holding
// authority.
func (m EntityAuthMutator) SetObserver(side replicon.EntitySide) error {
	return m.ch.withLock(func() { m.ch.observer = side })
}

// SetHostType updates the owning host type.
func (m EntityAuthMutator) SetHostType(owner replicon.Owner) error {
	return m.ch.withLock(func() { m.ch.hostType = owner })
}

// Read is a convenience equal to Accessor().Read().
func (m EntityAuthMutator) Read() (Snapshot, error) {
	return EntityAuthAccessor{ch: m.ch}.Read()
}
