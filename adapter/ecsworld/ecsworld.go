// Package ecsworld is a reference replicon.World adapter backed by a
// plain map of component bytes per entity, grounded on how the
// teacher keeps world-like state (the ledger, the AuthoritySet) behind
// a narrow interface (StateRW, BlockReader) rather than exposing its
// storage directly. Applications with a real ECS (bevy_ecs-equivalent,
// an in-house component store) implement replicon.World themselves;
// this adapter exists for tests, the CLI's bench subcommand, and as a
// worked example of the interface's contract.
package ecsworld

import (
	"fmt"
	"sync"

	"replicon"
)

// mutator is the ComponentMutator handed back by MutableComponent; it
// records which fields were touched so a caller-supplied translator
// can mark the matching bits dirty on the entity's diff channel.
type mutator struct {
	mu     sync.Mutex
	fields []int
}

func (m *mutator) MarkDirty(field int) {
	m.mu.Lock()
	m.fields = append(m.fields, field)
	m.mu.Unlock()
}

// DirtyFields returns and clears the fields marked since the last call.
func (m *mutator) DirtyFields() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.fields
	m.fields = nil
	return out
}

// World is a minimal in-memory replicon.World: entities are just ids,
// components are opaque byte blobs keyed by ComponentKind.
type World struct {
	mu         sync.Mutex
	next       replicon.GlobalEntity
	components map[replicon.GlobalEntity]map[replicon.ComponentKind][]byte
	mutators   map[replicon.GlobalEntity]map[replicon.ComponentKind]*mutator
}

// New returns an empty World.
func New() *World {
	return &World{
		components: make(map[replicon.GlobalEntity]map[replicon.ComponentKind][]byte),
		mutators:   make(map[replicon.GlobalEntity]map[replicon.ComponentKind]*mutator),
	}
}

func (w *World) SpawnEntity() replicon.GlobalEntity {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	w.components[w.next] = make(map[replicon.ComponentKind][]byte)
	w.mutators[w.next] = make(map[replicon.ComponentKind]*mutator)
	return w.next
}

func (w *World) DespawnEntity(g replicon.GlobalEntity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.components, g)
	delete(w.mutators, g)
}

func (w *World) HasComponent(g replicon.GlobalEntity, k replicon.ComponentKind) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	comps, ok := w.components[g]
	if !ok {
		return false
	}
	_, ok = comps[k]
	return ok
}

func (w *World) InsertComponent(g replicon.GlobalEntity, k replicon.ComponentKind, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	comps, ok := w.components[g]
	if !ok {
		return fmt.Errorf("ecsworld: unknown entity %d", g)
	}
	comps[k] = b
	w.mutators[g][k] = &mutator{}
	return nil
}

func (w *World) RemoveComponentOfKind(g replicon.GlobalEntity, k replicon.ComponentKind) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	comps, ok := w.components[g]
	if !ok {
		return nil, fmt.Errorf("ecsworld: unknown entity %d", g)
	}
	b, ok := comps[k]
	if !ok {
		return nil, fmt.Errorf("ecsworld: entity %d has no component %v", g, k)
	}
	delete(comps, k)
	delete(w.mutators[g], k)
	return b, nil
}

func (w *World) MutableComponent(g replicon.GlobalEntity, k replicon.ComponentKind) (replicon.ComponentMutator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	muts, ok := w.mutators[g]
	if !ok {
		return nil, fmt.Errorf("ecsworld: unknown entity %d", g)
	}
	m, ok := muts[k]
	if !ok {
		return nil, fmt.Errorf("ecsworld: entity %d has no component %v", g, k)
	}
	return m, nil
}

func (w *World) ReadComponent(g replicon.GlobalEntity, k replicon.ComponentKind) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	comps, ok := w.components[g]
	if !ok {
		return nil, fmt.Errorf("ecsworld: unknown entity %d", g)
	}
	b, ok := comps[k]
	if !ok {
		return nil, fmt.Errorf("ecsworld: entity %d has no component %v", g, k)
	}
	return b, nil
}
