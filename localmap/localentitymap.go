// Package localmap implements C8: the bidirectional index between a
// connection-local entity id (HostEntity, the id this side assigned,
// and/or RemoteEntity, the id the peer assigned) and the GlobalEntity
// both sides ultimately agree an entity is. An entity migrating into
// delegation briefly has both a host and a remote id; one of the two is
// always the "primary" used to translate an inbound GlobalEntity
// lookup back to a local id.
package localmap

import (
	"sync"

	"replicon"
	"replicon/pkg/synerr"
)

// LocalEntityMap is the per-connection translation table between
// GlobalEntity and the local HostEntity/RemoteEntity ids addressing it.
type LocalEntityMap struct {
	mu             sync.RWMutex
	hostToGlobal   map[replicon.HostEntity]replicon.GlobalEntity
	remoteToGlobal map[replicon.RemoteEntity]replicon.GlobalEntity
	globalToHost   map[replicon.GlobalEntity]replicon.HostEntity
	globalToRemote map[replicon.GlobalEntity]replicon.RemoteEntity
	primary        map[replicon.GlobalEntity]replicon.EntitySide
}

// New returns an empty map.
func New() *LocalEntityMap {
	return &LocalEntityMap{
		hostToGlobal:   make(map[replicon.HostEntity]replicon.GlobalEntity),
		remoteToGlobal: make(map[replicon.RemoteEntity]replicon.GlobalEntity),
		globalToHost:   make(map[replicon.GlobalEntity]replicon.HostEntity),
		globalToRemote: make(map[replicon.GlobalEntity]replicon.RemoteEntity),
		primary:        make(map[replicon.GlobalEntity]replicon.EntitySide),
	}
}

// InsertWithHost records that host addresses global. If global has no
// primary side recorded yet, host becomes primary.
func (m *LocalEntityMap) InsertWithHost(global replicon.GlobalEntity, host replicon.HostEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hostToGlobal[host] = global
	m.globalToHost[global] = host
	if _, ok := m.primary[global]; !ok {
		m.primary[global] = replicon.SideHost
	}
}

// InsertWithRemote records that remote addresses global. If global has
// no primary side recorded yet, remote becomes primary.
func (m *LocalEntityMap) InsertWithRemote(global replicon.GlobalEntity, remote replicon.RemoteEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteToGlobal[remote] = global
	m.globalToRemote[global] = remote
	if _, ok := m.primary[global]; !ok {
		m.primary[global] = replicon.SideRemote
	}
}

// SetPrimaryToHost makes the host id primary for global. It returns
// synerr.ErrEntityNotFound if global has no recorded host id.
func (m *LocalEntityMap) SetPrimaryToHost(global replicon.GlobalEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.globalToHost[global]; !ok {
		return synerr.ErrEntityNotFound
	}
	m.primary[global] = replicon.SideHost
	return nil
}

// SetPrimaryToRemote makes the remote id primary for global. It returns
// synerr.ErrEntityNotFound if global has no recorded remote id.
func (m *LocalEntityMap) SetPrimaryToRemote(global replicon.GlobalEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.globalToRemote[global]; !ok {
		return synerr.ErrEntityNotFound
	}
	m.primary[global] = replicon.SideRemote
	return nil
}

// ClearRemote drops global's remote-id mapping, used once a delegated
// entity's migration response has been acknowledged and the old remote
// id is no longer meaningful. If remote was primary, host becomes
// primary provided one is recorded.
func (m *LocalEntityMap) ClearRemote(global replicon.GlobalEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remote, ok := m.globalToRemote[global]; ok {
		delete(m.remoteToGlobal, remote)
		delete(m.globalToRemote, global)
	}
	if m.primary[global] == replicon.SideRemote {
		if _, ok := m.globalToHost[global]; ok {
			m.primary[global] = replicon.SideHost
		} else {
			delete(m.primary, global)
		}
	}
}

// GlobalFromHost resolves host's GlobalEntity.
func (m *LocalEntityMap) GlobalFromHost(host replicon.HostEntity) (replicon.GlobalEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.hostToGlobal[host]
	return g, ok
}

// GlobalFromRemote resolves remote's GlobalEntity.
func (m *LocalEntityMap) GlobalFromRemote(remote replicon.RemoteEntity) (replicon.GlobalEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.remoteToGlobal[remote]
	return g, ok
}

// HostFromGlobal resolves global's HostEntity, if recorded.
func (m *LocalEntityMap) HostFromGlobal(global replicon.GlobalEntity) (replicon.HostEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.globalToHost[global]
	return h, ok
}

// RemoteFromGlobal resolves global's RemoteEntity, if recorded.
func (m *LocalEntityMap) RemoteFromGlobal(global replicon.GlobalEntity) (replicon.RemoteEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.globalToRemote[global]
	return r, ok
}

// Primary reports which side currently translates global.
func (m *LocalEntityMap) Primary(global replicon.GlobalEntity) (replicon.EntitySide, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.primary[global]
	return s, ok
}
