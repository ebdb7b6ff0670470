package remoteworld

import (
	"testing"

	"replicon"
	"replicon/engine"
	"replicon/localmap"
)

type fakeMutator struct{ dirty []int }

func (f *fakeMutator) MarkDirty(field int) { f.dirty = append(f.dirty, field) }

type fakeWorld struct {
	next       replicon.GlobalEntity
	components map[replicon.GlobalEntity]map[replicon.ComponentKind][]byte
	despawned  map[replicon.GlobalEntity]bool
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{components: make(map[replicon.GlobalEntity]map[replicon.ComponentKind][]byte), despawned: make(map[replicon.GlobalEntity]bool)}
}

func (w *fakeWorld) SpawnEntity() replicon.GlobalEntity {
	w.next++
	w.components[w.next] = make(map[replicon.ComponentKind][]byte)
	return w.next
}

func (w *fakeWorld) DespawnEntity(g replicon.GlobalEntity) { w.despawned[g] = true }

func (w *fakeWorld) HasComponent(g replicon.GlobalEntity, k replicon.ComponentKind) bool {
	_, ok := w.components[g][k]
	return ok
}

func (w *fakeWorld) InsertComponent(g replicon.GlobalEntity, k replicon.ComponentKind, b []byte) error {
	w.components[g][k] = b
	return nil
}

func (w *fakeWorld) RemoveComponentOfKind(g replicon.GlobalEntity, k replicon.ComponentKind) ([]byte, error) {
	b := w.components[g][k]
	delete(w.components[g], k)
	return b, nil
}

func (w *fakeWorld) MutableComponent(g replicon.GlobalEntity, k replicon.ComponentKind) (replicon.ComponentMutator, error) {
	return &fakeMutator{}, nil
}

func (w *fakeWorld) ReadComponent(g replicon.GlobalEntity, k replicon.ComponentKind) ([]byte, error) {
	return w.components[g][k], nil
}

func TestApplySpawnMintsGlobalAndRecordsMapping(t *testing.T) {
	world := newFakeWorld()
	m := New(world, engine.NewReceiverEngine(), localmap.New())
	global := m.ApplySpawn(5)
	if global == 0 {
		t.Fatalf("expected a minted global entity")
	}
}

func TestApplyInsertComponentOnUnknownEntityErrors(t *testing.T) {
	world := newFakeWorld()
	m := New(world, engine.NewReceiverEngine(), localmap.New())
	if err := m.ApplyInsertComponent(99, replicon.ComponentKind{}, []byte("x"), nil); err == nil {
		t.Fatalf("expected error for unknown remote entity")
	}
}

func TestApplyInsertComponentBlockedByMissingReferenceIsParked(t *testing.T) {
	world := newFakeWorld()
	m := New(world, engine.NewReceiverEngine(), localmap.New())
	m.ApplySpawn(1)

	blocker := replicon.RemoteEntity(2)
	kind := replicon.ComponentKind{}
	if err := m.ApplyInsertComponent(1, kind, []byte("payload"), &blocker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Waiting() != 1 {
		t.Fatalf("expected 1 parked apply, got %d", m.Waiting())
	}
	if world.HasComponent(1, kind) {
		t.Fatalf("expected insert not yet applied while blocked")
	}

	m.ApplySpawn(2) // releases the waitlist entry keyed on 2
	if m.Waiting() != 0 {
		t.Fatalf("expected waitlist drained once the blocking entity spawned")
	}
	if !world.HasComponent(1, kind) {
		t.Fatalf("expected parked insert applied once unblocked")
	}
}

func TestApplyDespawnRemovesMappingAndChannel(t *testing.T) {
	world := newFakeWorld()
	m := New(world, engine.NewReceiverEngine(), localmap.New())
	m.ApplySpawn(1)
	if err := m.ApplyDespawn(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ApplyDespawn(1); err == nil {
		t.Fatalf("expected error on double despawn")
	}
}

func TestApplyUpdateComponentInvokesMutator(t *testing.T) {
	world := newFakeWorld()
	m := New(world, engine.NewReceiverEngine(), localmap.New())
	m.ApplySpawn(1)

	var touched bool
	err := m.ApplyUpdateComponent(1, replicon.ComponentKind{}, func(mut replicon.ComponentMutator) error {
		mut.MarkDirty(3)
		touched = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !touched {
		t.Fatalf("expected apply callback invoked")
	}
}
