package hostworld

import (
	"sync"

	"replicon"
	"replicon/diffmask"
	"replicon/engine"
	"replicon/entitychannel"
)

// MutationUpdate is one component's dirty-field mask ready to be packed
// onto the wire for this peer.
type MutationUpdate struct {
	Global    replicon.GlobalEntity
	Component replicon.ComponentKind
	Mask      *diffmask.DiffMask
}

// OutgoingCommand is one item in a peer's outgoing queue: exactly one
// of Entity, System or Mutation is set.
type OutgoingCommand struct {
	Entity   *entitychannel.Emitted
	System   *engine.SystemMessage
	Mutation *MutationUpdate
}

type pendingMutation struct {
	key  diffKey
	mask *diffmask.DiffMask
}

// pendingPacket is everything Flush packed into one outgoing packet that
// must be recovered if that packet is later reported dropped: the
// mutation masks (restored onto their receivers so fresh diffs replace
// the lost bytes) and the Entity/System commands (replayed verbatim,
// since there is no receiver to re-derive them from).
type pendingPacket struct {
	mutations []pendingMutation
	commands  []OutgoingCommand
}

// HostWorldManager is the per-peer host-side world manager: it owns the
// peer's HostEngine, packs mutation updates from the shared
// ChannelRegistry, and tracks which outgoing packet carried which
// mutation mask for the ACK path.
type HostWorldManager struct {
	mu       sync.Mutex
	peerAddr string
	registry *ChannelRegistry
	engine   *engine.HostEngine
	tracked  map[diffKey]uint // field count per tracked (entity, component)
	queue    []OutgoingCommand
	inFlight map[uint16]pendingPacket
}

// New returns a manager for peerAddr sharing registry and driving eng.
func New(peerAddr string, registry *ChannelRegistry, eng *engine.HostEngine) *HostWorldManager {
	return &HostWorldManager{
		peerAddr: peerAddr,
		registry: registry,
		engine:   eng,
		tracked:  make(map[diffKey]uint),
		inFlight: make(map[uint16]pendingPacket),
	}
}

// Track begins packing (global, comp)'s mutation mask for this peer.
func (w *HostWorldManager) Track(global replicon.GlobalEntity, comp replicon.ComponentKind, fieldCount uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := diffKey{global, comp}
	if _, ok := w.tracked[key]; !ok {
		w.tracked[key] = fieldCount
		w.registry.channelFor(global, comp, fieldCount).NewReceiver(w.peerAddr)
	}
}

// Untrack stops packing (global, comp) for this peer and tears down its
// receiver, typically on component removal or entity despawn.
func (w *HostWorldManager) Untrack(global replicon.GlobalEntity, comp replicon.ComponentKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := diffKey{global, comp}
	fieldCount, ok := w.tracked[key]
	if !ok {
		return
	}
	delete(w.tracked, key)
	w.registry.channelFor(global, comp, fieldCount).RemoveReceiver(w.peerAddr)
}

// Enqueue appends cmd directly to the outgoing queue, used for items
// that did not originate from the engine (e.g. handshake framing).
func (w *HostWorldManager) Enqueue(cmd OutgoingCommand) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, cmd)
}

// Flush drains the engine's pending entity and system events, packs
// every tracked component whose mask is non-empty, records the packed
// masks and commands against packetIndex for the ACK path, and returns
// the combined outgoing queue.
func (w *HostWorldManager) Flush(packetIndex uint16) []OutgoingCommand {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.engine.TakeEvents() {
		e := e
		w.queue = append(w.queue, OutgoingCommand{Entity: &e})
	}
	for _, s := range w.engine.TakeSystemEvents() {
		s := s
		w.queue = append(w.queue, OutgoingCommand{System: &s})
	}

	var capturedCommands []OutgoingCommand
	for _, cmd := range w.queue {
		if cmd.Entity != nil || cmd.System != nil {
			capturedCommands = append(capturedCommands, cmd)
		}
	}

	var capturedMutations []pendingMutation
	for key, fieldCount := range w.tracked {
		recv := w.registry.channelFor(key.Global, key.Component, fieldCount).NewReceiver(w.peerAddr)
		if recv.IsClear() {
			continue
		}
		mask := recv.MaskRead()
		recv.ClearMask()
		mu := MutationUpdate{Global: key.Global, Component: key.Component, Mask: mask}
		w.queue = append(w.queue, OutgoingCommand{Mutation: &mu})
		capturedMutations = append(capturedMutations, pendingMutation{key: key, mask: mask})
	}
	if len(capturedCommands) > 0 || len(capturedMutations) > 0 {
		w.inFlight[packetIndex] = pendingPacket{mutations: capturedMutations, commands: capturedCommands}
	}

	out := w.queue
	w.queue = nil
	return out
}

// NotifyPacketDelivered discards packetIndex's bookkeeping: its
// mutations and commands are confirmed received and need no retry.
func (w *HostWorldManager) NotifyPacketDelivered(packetIndex uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, packetIndex)
}

// NotifyPacketDropped restores packetIndex's captured masks onto their
// receivers so the dirty fields are re-sent on a future tick instead of
// the exact bytes being retransmitted, and re-queues packetIndex's
// Entity/System commands ahead of anything queued since, since those
// have no receiver to re-derive them from.
func (w *HostWorldManager) NotifyPacketDropped(packetIndex uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending, ok := w.inFlight[packetIndex]
	if !ok {
		return
	}
	delete(w.inFlight, packetIndex)
	for _, p := range pending.mutations {
		fieldCount := w.tracked[p.key]
		recv := w.registry.channelFor(p.key.Global, p.key.Component, fieldCount).NewReceiver(w.peerAddr)
		recv.OrMask(p.mask)
	}
	if len(pending.commands) > 0 {
		w.queue = append(pending.commands, w.queue...)
	}
}

// InFlightPackets returns the number of packets awaiting ACK.
func (w *HostWorldManager) InFlightPackets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}
