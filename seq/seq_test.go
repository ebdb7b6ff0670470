package seq

import "testing"

func TestLessThan(t *testing.T) {
	cases := []struct {
		a, b uint16
		want bool
	}{
		{0, 1, true},
		{1, 0, false},
		{0, 0, false},
		{65535, 0, true},
		{0, 65535, false},
		{32768, 0, false}, // exactly half apart: not strictly less
	}
	for _, c := range cases {
		if got := LessThan(c.a, c.b); got != c.want {
			t.Errorf("LessThan(%d,%d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestOrderedIdsPushBackMaintainsOrder(t *testing.T) {
	o := NewOrderedIds[string]()
	o.PushBack(5, "five")
	o.PushBack(3, "three")
	o.PushBack(7, "seven")
	o.PushBack(5, "dup") // ignored

	var got []uint16
	for o.Len() > 0 {
		id, _, _ := o.PopFront()
		got = append(got, id)
	}
	want := []uint16{3, 5, 7}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestOrderedIdsPopFrontUntil(t *testing.T) {
	o := NewOrderedIds[int]()
	for _, id := range []uint16{1, 2, 3, 4, 5} {
		o.PushBack(id, int(id))
	}
	drained := o.PopFrontUntil(3, false)
	if len(drained) != 2 || drained[0] != 1 || drained[1] != 2 {
		t.Fatalf("unexpected drained (exclusive): %v", drained)
	}
	drained = o.PopFrontUntil(3, true)
	if len(drained) != 1 || drained[0] != 3 {
		t.Fatalf("unexpected drained (inclusive): %v", drained)
	}
	if o.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", o.Len())
	}
}

func TestSequenceListDuplicateRejectedStrict(t *testing.T) {
	s := NewSequenceList[int]()
	if err := s.Insert(1, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Insert(1, 200); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestSequenceListMustInsertPanicsOnDuplicate(t *testing.T) {
	s := NewSequenceList[int]()
	s.MustInsert(1, 100)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate MustInsert")
		}
	}()
	s.MustInsert(1, 200)
}

func TestSequenceListTryInsertDedup(t *testing.T) {
	s := NewSequenceList[int]()
	if !s.TryInsert(1, 100) {
		t.Fatalf("expected first insert to succeed")
	}
	if s.TryInsert(1, 200) {
		t.Fatalf("expected duplicate insert to be rejected silently")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
}

func TestSequenceListRemoveAndFront(t *testing.T) {
	s := NewSequenceList[string]()
	s.MustInsert(10, "ten")
	s.MustInsert(5, "five")
	s.MustInsert(20, "twenty")

	id, v, ok := s.Front()
	if !ok || id != 5 || v != "five" {
		t.Fatalf("unexpected front: %d %q %v", id, v, ok)
	}
	if _, ok := s.Remove(10); !ok {
		t.Fatalf("expected remove to find id 10")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", s.Len())
	}
	if _, ok := s.Remove(999); ok {
		t.Fatalf("expected remove of missing id to fail")
	}
}
