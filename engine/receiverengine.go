package engine

import (
	"sync"

	"replicon"
	"replicon/entitychannel"
	"replicon/subchannel"
)

// ReceiverEngine owns every RemoteEntityChannel for one connection,
// keyed by the RemoteEntity id wire commands address. Unlike HostEngine
// it does not create channels as a side effect of applying a command
// (EnsureChannel is the receive-side entity creation point, driven by
// remoteworld); it does mirror HostEngine's outgoing-event buffer so the
// application can observe an ordered EntityEvent stream on the receive
// path the same way it does on the send path.
type ReceiverEngine struct {
	mu       sync.Mutex
	channels map[replicon.RemoteEntity]*entitychannel.RemoteEntityChannel
	events   []entitychannel.Emitted
}

// NewReceiverEngine returns an engine with no entities.
func NewReceiverEngine() *ReceiverEngine {
	return &ReceiverEngine{channels: make(map[replicon.RemoteEntity]*entitychannel.RemoteEntityChannel)}
}

// EnsureChannel returns the channel for remote, creating it in initial
// state if it does not exist yet. An inbound Spawn is expected to be
// the first command to reach a given RemoteEntity, but EnsureChannel is
// idempotent so replayed or reordered delivery never double-allocates.
func (e *ReceiverEngine) EnsureChannel(remote replicon.RemoteEntity, global replicon.GlobalEntity, initial subchannel.AuthState) *entitychannel.RemoteEntityChannel {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[remote]
	if !ok {
		ch = entitychannel.NewRemoteEntityChannel(global, initial)
		e.channels[remote] = ch
	}
	return ch
}

// Channel returns the channel for remote, if it exists.
func (e *ReceiverEngine) Channel(remote replicon.RemoteEntity) (*entitychannel.RemoteEntityChannel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[remote]
	return ch, ok
}

// Remove destroys the channel for remote, typically on an inbound
// Despawn.
func (e *ReceiverEngine) Remove(remote replicon.RemoteEntity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.channels, remote)
}

// AppendEvents adds a batch released by a RemoteEntityChannel's Apply*
// methods to the outgoing application-event stream.
func (e *ReceiverEngine) AppendEvents(batch []entitychannel.Emitted) {
	if len(batch) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, batch...)
}

// TakeEvents drains the entity-channel events accumulated since the
// last call.
func (e *ReceiverEngine) TakeEvents() []entitychannel.Emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}

// Len returns the number of live entity channels.
func (e *ReceiverEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.channels)
}
