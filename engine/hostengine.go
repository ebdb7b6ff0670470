// Package engine implements C7: the per-connection entity engine that
// owns every entity channel for one peer. HostEngine is the sending
// side; ReceiverEngine is the receiving side. Both key their channels
// by the connection-local entity id (HostEntity / RemoteEntity) rather
// than the GlobalEntity, since that is what wire commands address.
package engine

import (
	"sync"

	"replicon"
	"replicon/entitychannel"
	"replicon/localmap"
	"replicon/pkg/synerr"
	"replicon/subchannel"
)

// SystemMessageKind enumerates the messages that bypass entity-channel
// state entirely: a keepalive Noop and the four response-style
// messages a peer sends back to acknowledge a request (delegation
// enable/disable, and spawn/despawn acks used by callers that want a
// confirmation round-trip).
type SystemMessageKind uint8

const (
	MsgNoop SystemMessageKind = iota
	MsgEnableDelegationResponse
	MsgDisableDelegationResponse
	MsgSpawnResponse
	MsgDespawnResponse
)

// SystemMessage is one system-level event routed directly to the
// outgoing stream, never touching an entity channel's state machine.
type SystemMessage struct {
	Kind    SystemMessageKind
	Payload any
}

// HostEngine owns every HostEntityChannel for one connection.
type HostEngine struct {
	mu           sync.Mutex
	gen          *localmap.HostEntityGenerator
	channels     map[replicon.HostEntity]*entitychannel.HostEntityChannel
	globalOf     map[replicon.HostEntity]replicon.GlobalEntity
	events       []entitychannel.Emitted
	systemEvents []SystemMessage
}

// NewHostEngine returns an engine with no entities. HostEntity ids are
// minted through a HostEntityGenerator so a despawned id is held back
// for its TTL reservation window rather than handed to a new entity
// while a packet addressing the old one might still be in flight.
func NewHostEngine() *HostEngine {
	return &HostEngine{
		gen:      localmap.NewHostEntityGenerator(),
		channels: make(map[replicon.HostEntity]*entitychannel.HostEntityChannel),
		globalOf: make(map[replicon.HostEntity]replicon.GlobalEntity),
	}
}

// Spawn creates a new HostEntityChannel for global, assigns it the next
// HostEntity id, and emits Spawn immediately.
func (e *HostEngine) Spawn(global replicon.GlobalEntity, oldRemote replicon.RemoteEntity, initial subchannel.AuthState) replicon.HostEntity {
	e.mu.Lock()
	defer e.mu.Unlock()

	local := e.gen.Generate()
	ch := entitychannel.NewHostEntityChannel(global, oldRemote, initial)
	e.channels[local] = ch
	e.globalOf[local] = global
	e.events = append(e.events, ch.Spawn()...)
	return local
}

// LocalOf returns the HostEntity id assigned to global, if any. Used to
// address outgoing wire commands, which travel by short id rather than
// GlobalEntity.
func (e *HostEngine) LocalOf(global replicon.GlobalEntity) (replicon.HostEntity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for local, g := range e.globalOf {
		if g == global {
			return local, true
		}
	}
	return 0, false
}

// Despawn emits Despawn for local and destroys its channel, so any
// further Submit against local fails with ErrEntityNotFound.
func (e *HostEngine) Despawn(local replicon.HostEntity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.channels[local]
	if !ok {
		return synerr.ErrEntityNotFound
	}
	e.events = append(e.events, ch.Despawn()...)
	delete(e.channels, local)
	delete(e.globalOf, local)
	e.gen.Free(local)
	return nil
}

// Channel returns the channel for local, if it exists.
func (e *HostEngine) Channel(local replicon.HostEntity) (*entitychannel.HostEntityChannel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[local]
	return ch, ok
}

// Submit runs fn against local's channel and appends whatever it emits
// to the outgoing event stream. It returns ErrEntityNotFound if local
// has no channel (already despawned, or never spawned) — a caller bug
// on the send side, matching the strict half of the error-handling
// duality used throughout replicon.
func (e *HostEngine) Submit(local replicon.HostEntity, fn func(*entitychannel.HostEntityChannel) ([]entitychannel.Emitted, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.channels[local]
	if !ok {
		return synerr.ErrEntityNotFound
	}
	emitted, err := fn(ch)
	if err != nil {
		return err
	}
	e.events = append(e.events, emitted...)
	return nil
}

// EmitSystem appends a system message directly to the outgoing stream.
func (e *HostEngine) EmitSystem(kind SystemMessageKind, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.systemEvents = append(e.systemEvents, SystemMessage{Kind: kind, Payload: payload})
}

// Noop emits a keepalive message carrying no entity state.
func (e *HostEngine) Noop() { e.EmitSystem(MsgNoop, nil) }

// TakeEvents drains the entity-channel events accumulated since the
// last call.
func (e *HostEngine) TakeEvents() []entitychannel.Emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}

// TakeSystemEvents drains the system messages accumulated since the
// last call.
func (e *HostEngine) TakeSystemEvents() []SystemMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.systemEvents
	e.systemEvents = nil
	return out
}

// Len returns the number of live entity channels.
func (e *HostEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.channels)
}
