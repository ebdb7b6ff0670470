package ecsworld

import (
	"bytes"
	"testing"

	"replicon"
)

func TestInsertReadRemoveComponent(t *testing.T) {
	w := New()
	g := w.SpawnEntity()
	kind := replicon.ComponentKindFromID(1)

	if w.HasComponent(g, kind) {
		t.Fatalf("expected no component yet")
	}
	if err := w.InsertComponent(g, kind, []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.HasComponent(g, kind) {
		t.Fatalf("expected component present")
	}
	b, err := w.ReadComponent(g, kind)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(b, []byte("payload")) {
		t.Fatalf("unexpected bytes: %q", b)
	}
	removed, err := w.RemoveComponentOfKind(g, kind)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(removed, []byte("payload")) {
		t.Fatalf("unexpected removed bytes: %q", removed)
	}
	if w.HasComponent(g, kind) {
		t.Fatalf("expected component gone after removal")
	}
}

func TestMutableComponentTracksDirtyFields(t *testing.T) {
	w := New()
	g := w.SpawnEntity()
	kind := replicon.ComponentKindFromID(2)
	if err := w.InsertComponent(g, kind, []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, err := w.MutableComponent(g, kind)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.MarkDirty(3)
	m.MarkDirty(5)
	dirty := m.(*mutator).DirtyFields()
	if len(dirty) != 2 || dirty[0] != 3 || dirty[1] != 5 {
		t.Fatalf("unexpected dirty fields: %v", dirty)
	}
}

func TestOperationsOnUnknownEntityError(t *testing.T) {
	w := New()
	kind := replicon.ComponentKindFromID(1)
	if err := w.InsertComponent(99, kind, nil); err == nil {
		t.Fatalf("expected error for unknown entity")
	}
	if _, err := w.ReadComponent(99, kind); err == nil {
		t.Fatalf("expected error for unknown entity")
	}
}
