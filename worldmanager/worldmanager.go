// Package worldmanager implements C12: the per-peer facade binding the
// reliable channel (C3), fragmentation (C4), entity channels (C6),
// engines (C7), and the host/remote world managers (C10/C11) into one
// connection driver.
package worldmanager

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"replicon"
	"replicon/adapter"
	"replicon/diffmask"
	"replicon/engine"
	"replicon/entitychannel"
	"replicon/fragment"
	"replicon/hostworld"
	"replicon/localmap"
	"replicon/pkg/config"
	"replicon/pkg/synclog"
	"replicon/pkg/synerr"
	"replicon/reliable"
	"replicon/remoteworld"
	"replicon/subchannel"
	"replicon/wire"
)

// ackTimeoutTicks is how long an outgoing packet may go unacknowledged
// before its mutation masks are treated as dropped and restored for a
// later retry, expressed as a multiple of the tick interval rather
// than a measured RTT: a connection's first few ticks have no RTT
// sample to work from.
const ackTimeoutTicks = 4

// messagePayload is the reliable sender/receiver payload for C3's user
// message traffic: either a plain application body tagged with the
// ChannelKind id it was sent on, or an encoded C4 fragment (Channel is
// unused then, since a fragment's destination channel travels inside
// its own header instead).
type messagePayload struct {
	Fragment bool
	Channel  uint16
	Body     []byte
}

// WorldManager drives one peer connection: packing and sending outbound
// traffic, and decoding and applying inbound traffic, on its own
// schedule independent of every other peer.
type WorldManager struct {
	peerAddr  string
	transport replicon.Transport
	world     replicon.World

	hostEngine     *engine.HostEngine
	receiverEngine *engine.ReceiverEngine
	hostWorld      *hostworld.HostWorldManager
	remoteWorld    *remoteworld.RemoteWorldManager
	localMap       *localmap.LocalEntityMap

	msgSender       *reliable.Sender[messagePayload]
	msgReceiver     *reliable.Receiver[messagePayload]
	reassembler     *fragment.Reassembler
	nextFragment    uint32
	fragmentChunk   int
	streamThreshold int
	resendFactor    float64

	mu            sync.Mutex
	nextPacketIdx uint16
	sentAt        map[uint16]time.Time
	packetMsgs    map[uint16][]uint16
	keepalive     *keepaliveState
	tickInterval  time.Duration
}

// New returns a driver for one peer connection. registry is shared
// across every peer so a single mutation broadcast reaches all of
// them; world and transport are the host application's backends. The
// fragment threshold, stream threshold and resend factor that govern
// this peer's C3/C4 traffic always come from config.Defaults(); New
// offers no option to override them.
func New(peerAddr string, transport replicon.Transport, world replicon.World, registry *hostworld.ChannelRegistry, tickInterval time.Duration) *WorldManager {
	hostEngine := engine.NewHostEngine()
	receiverEngine := engine.NewReceiverEngine()
	lmap := localmap.New()
	defaults := config.Defaults()

	return &WorldManager{
		peerAddr:        peerAddr,
		transport:       transport,
		world:           world,
		hostEngine:      hostEngine,
		receiverEngine:  receiverEngine,
		hostWorld:       hostworld.New(peerAddr, registry, hostEngine),
		remoteWorld:     remoteworld.New(world, receiverEngine, lmap),
		localMap:        lmap,
		msgSender:       reliable.NewSender[messagePayload](),
		msgReceiver:     reliable.NewReceiver[messagePayload](),
		reassembler:     fragment.NewReassembler(),
		fragmentChunk:   defaults.Transport.FragmentThreshold,
		streamThreshold: defaults.Transport.StreamThreshold,
		resendFactor:    defaults.Transport.ResendFactor,
		sentAt:          make(map[uint16]time.Time),
		packetMsgs:      make(map[uint16][]uint16),
		keepalive:       newKeepaliveState(tickInterval),
		tickInterval:    tickInterval,
	}
}

// HostEngine returns the peer's send-side entity engine.
func (m *WorldManager) HostEngine() *engine.HostEngine { return m.hostEngine }

// RemoteWorld returns the peer's receive-side world manager.
func (m *WorldManager) RemoteWorld() *remoteworld.RemoteWorldManager { return m.remoteWorld }

// HostWorld returns the peer's send-side world manager.
func (m *WorldManager) HostWorld() *hostworld.HostWorldManager { return m.hostWorld }

// HostSpawnEntity spawns a new entity in the local World and opens its
// HostEntityChannel on this peer, returning the GlobalEntity id the
// application addresses it by from then on.
func (m *WorldManager) HostSpawnEntity(oldRemote replicon.RemoteEntity, initial subchannel.AuthState) replicon.GlobalEntity {
	global := m.world.SpawnEntity()
	m.hostEngine.Spawn(global, oldRemote, initial)
	return global
}

// HostDespawnEntity closes global's channel on this peer and removes
// it from the local World.
func (m *WorldManager) HostDespawnEntity(global replicon.GlobalEntity) error {
	local, ok := m.hostEngine.LocalOf(global)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	if err := m.hostEngine.Despawn(local); err != nil {
		return err
	}
	m.world.DespawnEntity(global)
	return nil
}

// HostInsertComponent inserts kind on global in the local World, marks
// it Present on this peer's entity channel, and begins tracking its
// mutation mask for replication to this peer.
func (m *WorldManager) HostInsertComponent(global replicon.GlobalEntity, kind replicon.ComponentKind, payload []byte, fieldCount uint) error {
	local, ok := m.hostEngine.LocalOf(global)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	if err := m.world.InsertComponent(global, kind, payload); err != nil {
		return err
	}
	if err := m.hostEngine.Submit(local, func(ch *entitychannel.HostEntityChannel) ([]entitychannel.Emitted, error) {
		return ch.InsertComponent(kind), nil
	}); err != nil {
		return err
	}
	m.hostWorld.Track(global, kind, fieldCount)
	return nil
}

// HostRemoveComponent stops replicating kind to this peer, marks it
// Absent on global's entity channel, and removes it from the local
// World, returning its last known bytes.
func (m *WorldManager) HostRemoveComponent(global replicon.GlobalEntity, kind replicon.ComponentKind) ([]byte, error) {
	local, ok := m.hostEngine.LocalOf(global)
	if !ok {
		return nil, synerr.ErrEntityNotFound
	}
	if err := m.hostEngine.Submit(local, func(ch *entitychannel.HostEntityChannel) ([]entitychannel.Emitted, error) {
		return ch.RemoveComponent(kind), nil
	}); err != nil {
		return nil, err
	}
	m.hostWorld.Untrack(global, kind)
	return m.world.RemoveComponentOfKind(global, kind)
}

// EnableDelegation runs global's delegation-enable sequence, handing
// this peer the entity's delegated copy addressed as newRemote.
func (m *WorldManager) EnableDelegation(global replicon.GlobalEntity, newRemote replicon.RemoteEntity) error {
	local, ok := m.hostEngine.LocalOf(global)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	return m.hostEngine.Submit(local, func(ch *entitychannel.HostEntityChannel) ([]entitychannel.Emitted, error) {
		return ch.EnableDelegation(newRemote)
	})
}

// RequestAuthority asks to become authoritative over global, legal
// only while it is Delegated to this peer.
func (m *WorldManager) RequestAuthority(global replicon.GlobalEntity) error {
	local, ok := m.hostEngine.LocalOf(global)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	return m.hostEngine.Submit(local, func(ch *entitychannel.HostEntityChannel) ([]entitychannel.Emitted, error) {
		return ch.RequestAuthority()
	})
}

// ReleaseAuthority gives up this peer's authority over global.
func (m *WorldManager) ReleaseAuthority(global replicon.GlobalEntity) error {
	local, ok := m.hostEngine.LocalOf(global)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	return m.hostEngine.Submit(local, func(ch *entitychannel.HostEntityChannel) ([]entitychannel.Emitted, error) {
		return ch.ReleaseAuthority()
	})
}

// TakeEvents drains the receive-side entity-channel events accumulated
// since the last call, translated into the application-facing stream.
func (m *WorldManager) TakeEvents() []adapter.EntityEvent {
	return adapter.TranslateEmittedBatch(m.receiverEngine.TakeEvents())
}

// SendMessage enqueues body for reliable, in-order delivery to this
// peer on channel (C3), splitting it into C4 fragments first if it
// exceeds the configured fragment threshold. It returns the
// MessageIndex the message (or its first fragment) was assigned.
// Oversize messages beyond the configured stream threshold are
// rejected outright rather than split into an unbounded fragment run.
func (m *WorldManager) SendMessage(channel replicon.ChannelKind, body []byte) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(body) > m.streamThreshold {
		return 0, synerr.ErrMessageExceedsStreamLimit
	}
	if len(body) <= m.fragmentChunk {
		return m.msgSender.SendMessage(time.Now(), messagePayload{Channel: replicon.ChannelKindID(channel), Body: body})
	}

	firstIdx := m.msgSender.PeekNextIndex()
	fragmentID := m.nextFragment
	m.nextFragment++
	header := wire.EncodeMessageHeader(replicon.ChannelKindID(channel))
	frags, err := fragment.Split(fragmentID, header, firstIdx, body, m.fragmentChunk)
	if err != nil {
		return 0, err
	}
	if m.msgSender.InFlight()+len(frags) > reliable.MaxInFlight {
		return 0, synerr.ErrChannelQueueFull
	}
	for _, f := range frags {
		if _, err := m.msgSender.SendMessage(time.Now(), messagePayload{Fragment: true, Body: wire.EncodeFragment(f)}); err != nil {
			return 0, err
		}
	}
	return firstIdx, nil
}

// ReceivedMessage is one in-order reliable message delivered to the
// application, reassembled from its fragments if it arrived split.
type ReceivedMessage struct {
	Channel replicon.ChannelKind
	Body    []byte
}

// TakeMessages drains every reliable message newly ready for in-order
// delivery since the last call.
func (m *WorldManager) TakeMessages() []ReceivedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.msgReceiver.ReceiveMessages()
	out := make([]ReceivedMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, ReceivedMessage{Channel: replicon.ChannelKindFromID(v.Channel), Body: v.Body})
	}
	return out
}

func (m *WorldManager) allocatePacketIndex(now time.Time) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.nextPacketIdx
	m.nextPacketIdx++
	m.sentAt[idx] = now
	return idx
}

// Tick packs whatever is pending for this peer — entity/system/mutation
// commands plus due C3 reliable-message sends and retransmits — and
// sends it as a Data frame. It returns the number of items packed.
func (m *WorldManager) Tick(now time.Time) (int, error) {
	m.sweepTimeouts(now)

	m.mu.Lock()
	m.msgSender.CollectMessages(now, m.keepalive.RTT(), m.resendFactor)
	outMsgs := m.msgSender.TakeNextMessages()
	m.mu.Unlock()

	packetIndex := m.allocatePacketIndex(now)
	cmds := m.hostWorld.Flush(packetIndex)
	if len(cmds) == 0 && len(outMsgs) == 0 {
		m.mu.Lock()
		delete(m.sentAt, packetIndex)
		m.mu.Unlock()
		return 0, nil
	}

	if len(outMsgs) > 0 {
		indexes := make([]uint16, 0, len(outMsgs))
		for _, om := range outMsgs {
			indexes = append(indexes, om.Index)
		}
		m.mu.Lock()
		m.packetMsgs[packetIndex] = indexes
		m.mu.Unlock()
	}

	payload := m.encodeOutgoing(cmds, outMsgs)
	frame := wire.Frame{Type: wire.PacketData, PacketIndex: packetIndex, Payload: payload}
	if err := m.transport.Send(m.peerAddr, wire.EncodeFrame(frame)); err != nil {
		return 0, &replicon.SendError{Err: err}
	}
	return len(cmds) + len(outMsgs), nil
}

// sweepTimeouts treats any packet older than ackTimeoutTicks ticks as
// dropped, restoring its mutation masks for the next Flush. Its
// reliable messages need no such restore: C3's own CollectMessages
// re-sends an unacked message under the same MessageIndex regardless
// of packet-level outcome, so sweeping here only needs to release the
// stale index-tracking entry.
func (m *WorldManager) sweepTimeouts(now time.Time) {
	deadline := now.Add(-time.Duration(ackTimeoutTicks) * m.tickInterval)
	m.mu.Lock()
	var stale []uint16
	for idx, sentAt := range m.sentAt {
		if sentAt.Before(deadline) {
			stale = append(stale, idx)
		}
	}
	for _, idx := range stale {
		delete(m.sentAt, idx)
		delete(m.packetMsgs, idx)
	}
	m.mu.Unlock()

	for _, idx := range stale {
		m.hostWorld.NotifyPacketDropped(idx)
	}
}

// encodeOutgoing packs one Flush batch and one C3 send batch into a Data
// frame payload. Every command is addressed by the sender's own
// HostEntity id: the receiver has no notion of GlobalEntity until
// remoteworld mints one, so Target is the only addressing the wire
// format can carry (see DESIGN.md's GlobalEntity Open Question entry).
// System messages carry no entity addressing at all and are dropped
// here; they are a keepalive/ack convenience the reliable channel layer
// consumes directly, not part of this module's entity replication
// surface.
func (m *WorldManager) encodeOutgoing(cmds []hostworld.OutgoingCommand, outMsgs []reliable.OutgoingMessage[messagePayload]) []byte {
	var entityCmds []wire.EntityCommand
	for _, c := range cmds {
		switch {
		case c.Entity != nil:
			target, _ := m.hostEngine.LocalOf(c.Entity.Global)
			wc := wire.EntityCommand{
				Kind:      c.Entity.Cmd.Kind,
				Target:    target,
				Component: c.Entity.Component,
				SubCmd:    c.Entity.SubCmd,
			}
			switch p := c.Entity.Cmd.Payload.(type) {
			case replicon.EntityAuthStatus:
				wc.Status = p
			case entitychannel.RequestAuthorityPayload:
				wc.Remote = p.Remote
			case entitychannel.MigrateResponsePayload:
				wc.NewHost = p.New
			}
			entityCmds = append(entityCmds, wc)
		case c.Mutation != nil:
			target, _ := m.hostEngine.LocalOf(c.Mutation.Global)
			entityCmds = append(entityCmds, wire.EntityCommand{
				Kind:      subchannel.CmdMutation,
				Target:    target,
				Component: c.Mutation.Component,
				Body:      c.Mutation.Mask.Bytes(),
			})
		}
	}

	wireMsgs := make([]wire.IndexedMessage, 0, len(outMsgs))
	for _, om := range outMsgs {
		im := wire.IndexedMessage{Index: om.Index, Body: om.Payload.Body}
		if om.Payload.Fragment {
			im.Kind = wire.MessageFragment
		} else {
			im.Kind = wire.MessagePlain
			im.Channel = om.Payload.Channel
		}
		wireMsgs = append(wireMsgs, im)
	}

	return wire.EncodeDataPayload(wire.WriteCommands(entityCmds), wire.WriteMessages(wireMsgs))
}

// PollInbound drains the transport once, decoding and applying
// whatever it finds. It returns the number of datagrams processed.
func (m *WorldManager) PollInbound() (int, error) {
	n := 0
	for {
		addr, b, ok, err := m.transport.Receive()
		if err != nil {
			return n, &replicon.RecvError{Err: err}
		}
		if !ok {
			return n, nil
		}
		if addr != m.peerAddr {
			continue
		}
		if err := m.handleDatagram(b); err != nil {
			synclog.L().WithError(err).Warn("replicon: dropping malformed datagram")
		}
		n++
	}
}

func (m *WorldManager) handleDatagram(b []byte) error {
	frame, err := wire.DecodeFrame(b)
	if err != nil {
		return err
	}
	switch frame.Type {
	case wire.PacketHeartbeat:
		m.keepalive.onHeartbeat()
		return nil
	case wire.PacketPing:
		return m.sendPong()
	case wire.PacketPong:
		m.keepalive.onPong()
		return nil
	case wire.PacketAck:
		m.mu.Lock()
		delete(m.sentAt, frame.PacketIndex)
		msgIdxs := m.packetMsgs[frame.PacketIndex]
		delete(m.packetMsgs, frame.PacketIndex)
		for _, idx := range msgIdxs {
			m.msgSender.Deliver(idx)
		}
		m.mu.Unlock()
		m.hostWorld.NotifyPacketDelivered(frame.PacketIndex)
		return nil
	case wire.PacketData:
		if err := m.sendAck(frame.PacketIndex); err != nil {
			return err
		}
		cmdBytes, msgBytes, err := wire.DecodeDataPayload(frame.Payload)
		if err != nil {
			return err
		}
		cmds, err := wire.ReadCommands(cmdBytes)
		if err != nil {
			return err
		}
		for _, c := range cmds {
			if err := m.applyInbound(c); err != nil {
				synclog.L().WithError(err).Warn("replicon: rejecting inbound command")
			}
		}
		msgs, err := wire.ReadMessages(msgBytes)
		if err != nil {
			return err
		}
		return m.drainInboundMessages(msgs)
	default:
		return nil
	}
}

// drainInboundMessages buffers every inbound C3 message into msgReceiver,
// reassembling C4 fragments through m.reassembler as they complete. A
// fragment's own MessageIndex only governs its own ACK/retransmit
// bookkeeping; the reassembled message takes its place in the in-order
// delivery sequence at the first fragment's MessageIndex instead.
func (m *WorldManager) drainInboundMessages(msgs []wire.IndexedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, im := range msgs {
		switch im.Kind {
		case wire.MessagePlain:
			m.msgReceiver.BufferMessage(im.Index, messagePayload{Channel: im.Channel, Body: im.Body})
		case wire.MessageFragment:
			f, err := wire.DecodeFragment(im.Body)
			if err != nil {
				return err
			}
			completed, done, err := m.reassembler.Add(f)
			if err != nil {
				return err
			}
			if !done {
				continue
			}
			channel, err := wire.DecodeMessageHeader(completed.Header)
			if err != nil {
				return err
			}
			m.msgReceiver.BufferMessage(completed.MsgIndex, messagePayload{Channel: channel, Body: completed.Bytes})
		}
	}
	return nil
}

// applyInbound routes one decoded EntityCommand to the remote-side
// world manager or, for the authority sub-commands, directly to the
// entity's RemoteEntityChannel. Component body decoding beyond raw
// bytes (turning a component's wire payload into application fields) is
// the adapter layer's job, not this package's: WorldManager only knows
// how to move bytes, not what they mean to a given ComponentKind.
func (m *WorldManager) applyInbound(c wire.EntityCommand) error {
	remote := replicon.RemoteEntity(c.Target)
	switch c.Kind {
	case subchannel.CmdSpawn:
		m.remoteWorld.ApplySpawn(remote)
		return nil
	case subchannel.CmdDespawn:
		return m.remoteWorld.ApplyDespawn(remote)
	case subchannel.CmdInsertComponent:
		return m.remoteWorld.ApplyInsertComponent(remote, c.Component, c.Body, nil)
	case subchannel.CmdRemoveComponent:
		_, err := m.remoteWorld.ApplyRemoveComponent(remote, c.Component)
		return err
	case subchannel.CmdMutation:
		mask, err := diffmask.MaskFromBytes(c.Body)
		if err != nil {
			return err
		}
		return m.remoteWorld.ApplyUpdateComponent(remote, c.Component, func(mut replicon.ComponentMutator) error {
			for i := uint(0); i < mask.Len(); i++ {
				if mask.Test(i) {
					mut.MarkDirty(int(i))
				}
			}
			return nil
		})
	default:
		ch, ok := m.receiverEngine.Channel(remote)
		if !ok {
			return nil
		}
		cmd := subchannel.Command{Kind: c.Kind}
		switch c.Kind {
		case subchannel.CmdUpdateAuthority:
			cmd.Payload = c.Status
		case subchannel.CmdRequestAuthority:
			cmd.Payload = entitychannel.RequestAuthorityPayload{Remote: c.Remote}
		case subchannel.CmdMigrateResponse:
			cmd.Payload = entitychannel.MigrateResponsePayload{Old: remote, New: c.NewHost}
		}
		emitted, err := ch.ApplyAuth(cmd)
		if err != nil {
			return err
		}
		m.receiverEngine.AppendEvents(emitted)
		return nil
	}
}

func (m *WorldManager) sendAck(packetIndex uint16) error {
	frame := wire.Frame{Type: wire.PacketAck, PacketIndex: packetIndex}
	if err := m.transport.Send(m.peerAddr, wire.EncodeFrame(frame)); err != nil {
		return &replicon.SendError{Err: err}
	}
	return nil
}

// Drive runs the send and receive loops until ctx is cancelled or
// either loop returns an error.
func (m *WorldManager) Drive(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.sendLoop(ctx) })
	g.Go(func() error { return m.recvLoop(ctx) })

	return g.Wait()
}

func (m *WorldManager) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := m.Tick(now); err != nil {
				return err
			}
			if m.keepalive.due(now) {
				if err := m.sendHeartbeat(); err != nil {
					return err
				}
				if err := m.sendPing(); err != nil {
					return err
				}
			}
		}
	}
}

func (m *WorldManager) recvLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.tickInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.PollInbound(); err != nil {
				return err
			}
		}
	}
}
