// Package hostworld implements C10: the host-side world manager that
// packs per-peer outgoing traffic — entity-channel events, system
// messages, and per-component mutation updates — and tracks which
// packet carried which mutation mask so a dropped packet's dirty bits
// can be restored for the next tick instead of silently lost.
package hostworld

import (
	"sync"

	"replicon"
	"replicon/diffmask"
)

type diffKey struct {
	Global    replicon.GlobalEntity
	Component replicon.ComponentKind
}

// ChannelRegistry owns the one diffmask.Channel per (GlobalEntity,
// ComponentKind), shared across every peer's HostWorldManager so a
// mutation broadcast from the world reaches every connected peer's
// receiver through a single MarkDirty call.
type ChannelRegistry struct {
	mu       sync.Mutex
	channels map[diffKey]*diffmask.Channel
}

// NewChannelRegistry returns an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{channels: make(map[diffKey]*diffmask.Channel)}
}

func (r *ChannelRegistry) channelFor(global replicon.GlobalEntity, comp replicon.ComponentKind, fieldCount uint) *diffmask.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := diffKey{global, comp}
	ch, ok := r.channels[key]
	if !ok {
		ch = diffmask.NewChannel(fieldCount)
		r.channels[key] = ch
	}
	return ch
}

// MarkDirty broadcasts field i dirty on (global, comp)'s channel to
// every peer currently observing it.
func (r *ChannelRegistry) MarkDirty(global replicon.GlobalEntity, comp replicon.ComponentKind, fieldCount, i uint) error {
	return r.channelFor(global, comp, fieldCount).NewSender().MarkDirty(i)
}
