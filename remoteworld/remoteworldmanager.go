// Package remoteworld implements C11: the remote-side world manager
// that applies inbound spawn/insert/update/remove commands to the
// local World in causal order. A command that references another
// entity by a RemoteEntity id not yet spawned locally (a cross-entity
// reference inside a component payload) is parked on a waitlist keyed
// by the blocking id and released once that entity's Spawn arrives.
package remoteworld

import (
	"sync"

	"replicon"
	"replicon/engine"
	"replicon/entitychannel"
	"replicon/localmap"
	"replicon/pkg/synerr"
	"replicon/subchannel"
)

// QueuedApply is one inbound command parked because it referenced an
// entity not yet known locally.
type QueuedApply struct {
	Remote    replicon.RemoteEntity
	Component replicon.ComponentKind
	Apply     func(global replicon.GlobalEntity) error
}

// RemoteWorldManager is the per-connection remote-side world manager.
type RemoteWorldManager struct {
	mu       sync.Mutex
	world    replicon.World
	receiver *engine.ReceiverEngine
	lmap     *localmap.LocalEntityMap
	waitlist map[replicon.RemoteEntity][]QueuedApply
}

// New returns a manager applying inbound commands to world.
func New(world replicon.World, receiverEngine *engine.ReceiverEngine, lmap *localmap.LocalEntityMap) *RemoteWorldManager {
	return &RemoteWorldManager{
		world:    world,
		receiver: receiverEngine,
		lmap:     lmap,
		waitlist: make(map[replicon.RemoteEntity][]QueuedApply),
	}
}

// ApplySpawn mints a local GlobalEntity for the wire's remote id,
// records the mapping, and releases anything that was waiting on
// remote.
func (m *RemoteWorldManager) ApplySpawn(remote replicon.RemoteEntity) replicon.GlobalEntity {
	m.mu.Lock()
	defer m.mu.Unlock()

	global := m.world.SpawnEntity()
	ch := m.receiver.EnsureChannel(remote, global, subchannel.Unpublished)
	m.receiver.AppendEvents(ch.ApplySpawn())
	m.lmap.InsertWithRemote(global, remote)
	m.collectReadyItemsLocked(remote)
	return global
}

// ApplyDespawn tears down remote's local mirror.
func (m *RemoteWorldManager) ApplyDespawn(remote replicon.RemoteEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	global, ok := m.lmap.GlobalFromRemote(remote)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	if ch, ok := m.receiver.Channel(remote); ok {
		m.receiver.AppendEvents(ch.ApplyDespawn())
	}
	m.world.DespawnEntity(global)
	m.receiver.Remove(remote)
	m.lmap.ClearRemote(global)
	return nil
}

// ApplyInsertComponent inserts kind on remote's entity. If blockingOn
// is non-nil and that entity is not yet known locally, the insert is
// parked until blockingOn's Spawn arrives.
func (m *RemoteWorldManager) ApplyInsertComponent(remote replicon.RemoteEntity, kind replicon.ComponentKind, payload []byte, blockingOn *replicon.RemoteEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if blockingOn != nil {
		if _, ok := m.lmap.GlobalFromRemote(*blockingOn); !ok {
			blocker := *blockingOn
			m.waitlist[blocker] = append(m.waitlist[blocker], QueuedApply{
				Remote:    remote,
				Component: kind,
				Apply:     func(replicon.GlobalEntity) error { return m.applyInsertLocked(remote, kind, payload) },
			})
			return nil
		}
	}
	return m.applyInsertLocked(remote, kind, payload)
}

func (m *RemoteWorldManager) applyInsertLocked(remote replicon.RemoteEntity, kind replicon.ComponentKind, payload []byte) error {
	global, ok := m.lmap.GlobalFromRemote(remote)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	ch, ok := m.receiver.Channel(remote)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	m.receiver.AppendEvents(ch.ApplyInsertComponent(kind))
	return m.world.InsertComponent(global, kind, payload)
}

// ApplyRemoveComponent removes kind from remote's entity, returning its
// last known bytes.
func (m *RemoteWorldManager) ApplyRemoveComponent(remote replicon.RemoteEntity, kind replicon.ComponentKind) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	global, ok := m.lmap.GlobalFromRemote(remote)
	if !ok {
		return nil, synerr.ErrEntityNotFound
	}
	if ch, ok := m.receiver.Channel(remote); ok {
		m.receiver.AppendEvents(ch.ApplyRemoveComponent(kind))
	}
	return m.world.RemoveComponentOfKind(global, kind)
}

// ApplyUpdateComponent resolves remote's entity and kind's mutator and
// hands it to apply, which is responsible for decoding the wire
// payload into field writes.
func (m *RemoteWorldManager) ApplyUpdateComponent(remote replicon.RemoteEntity, kind replicon.ComponentKind, apply func(replicon.ComponentMutator) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	global, ok := m.lmap.GlobalFromRemote(remote)
	if !ok {
		return synerr.ErrEntityNotFound
	}
	mut, err := m.world.MutableComponent(global, kind)
	if err != nil {
		return err
	}
	if err := apply(mut); err != nil {
		return err
	}
	m.receiver.AppendEvents([]entitychannel.Emitted{{
		Global:    global,
		Component: kind,
		Cmd:       subchannel.Command{Kind: subchannel.CmdMutation},
	}})
	return nil
}

// CollectReadyItems releases and applies every command waitlisted on
// remote, returning the errors any of them produced.
func (m *RemoteWorldManager) CollectReadyItems(remote replicon.RemoteEntity) []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectReadyItemsLocked(remote)
}

func (m *RemoteWorldManager) collectReadyItemsLocked(remote replicon.RemoteEntity) []error {
	items := m.waitlist[remote]
	delete(m.waitlist, remote)
	global, _ := m.lmap.GlobalFromRemote(remote)
	var errs []error
	for _, it := range items {
		if err := it.Apply(global); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Waiting returns the number of commands currently parked on the
// waitlist, for diagnostics and tests.
func (m *RemoteWorldManager) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, items := range m.waitlist {
		n += len(items)
	}
	return n
}
