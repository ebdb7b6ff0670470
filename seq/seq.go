// Package seq implements the wrap-safe 16-bit sequence-number primitives
// that every reliable channel, diff mask receiver and entity sub-channel
// in replicon builds on: comparison under wrap-around, an ordered id
// buffer (OrderedIds) for values that must be drained in sequence order,
// and a duplicate-rejecting SequenceList for unacked/buffered storage.
package seq

import "replicon/pkg/synerr"

// LessThan reports whether a comes strictly before b in a 16-bit
// sequence space under wrap-around comparison: a != b && (b-a) mod 2^16 <
// 2^15.
func LessThan(a, b uint16) bool {
	return a != b && uint16(b-a) < 32768
}

// WrappingDiff returns b-a interpreted as a signed 16-bit delta.
func WrappingDiff(a, b uint16) int16 {
	return int16(b - a)
}

// OrderedIds is a monotonic deque keyed by a 16-bit wrapping sequence
// id. PushBack inserts at the unique position that keeps the deque
// sorted by wrapping sequence; scans run from the back since the
// expected case is near-tail insertion.
type OrderedIds[T any] struct {
	ids  []uint16
	vals []T
}

// NewOrderedIds returns an empty OrderedIds buffer.
func NewOrderedIds[T any]() *OrderedIds[T] {
	return &OrderedIds[T]{}
}

// Len returns the number of buffered entries.
func (o *OrderedIds[T]) Len() int { return len(o.ids) }

// PushBack inserts (id, v) keeping the buffer sorted by wrapping
// sequence order. Duplicate ids are silently ignored, matching the
// receiver's dedup contract.
func (o *OrderedIds[T]) PushBack(id uint16, v T) {
	i := len(o.ids)
	for i > 0 {
		prev := o.ids[i-1]
		if prev == id {
			return // duplicate, ignore
		}
		if LessThan(prev, id) {
			break
		}
		i--
	}
	o.ids = append(o.ids, 0)
	o.vals = append(o.vals, v)
	copy(o.ids[i+1:], o.ids[i:])
	copy(o.vals[i+1:], o.vals[i:])
	o.ids[i] = id
	o.vals[i] = v
}

// Front returns the oldest buffered entry without removing it.
func (o *OrderedIds[T]) Front() (uint16, T, bool) {
	if len(o.ids) == 0 {
		var zero T
		return 0, zero, false
	}
	return o.ids[0], o.vals[0], true
}

// PopFront removes and returns the oldest buffered entry.
func (o *OrderedIds[T]) PopFront() (uint16, T, bool) {
	id, v, ok := o.Front()
	if ok {
		o.ids = o.ids[1:]
		o.vals = o.vals[1:]
	}
	return id, v, ok
}

// PopFrontUntil drains entries strictly older than index (and, if
// inclusive, entries equal to index too), returning them oldest-first.
func (o *OrderedIds[T]) PopFrontUntil(index uint16, inclusive bool) []T {
	var out []T
	for len(o.ids) > 0 {
		id := o.ids[0]
		older := LessThan(id, index)
		eq := id == index
		if older || (inclusive && eq) {
			out = append(out, o.vals[0])
			o.ids = o.ids[1:]
			o.vals = o.vals[1:]
			continue
		}
		break
	}
	return out
}

// SequenceList stores at most one entry per id, scanning linearly from
// the back for the insertion point. Strict mode rejects duplicate
// insertion with synerr.ErrDuplicateId; permissive mode (via MustInsert)
// panics with the same error instead.
type SequenceList[T any] struct {
	ids  []uint16
	vals []T
}

// NewSequenceList returns an empty SequenceList.
func NewSequenceList[T any]() *SequenceList[T] {
	return &SequenceList[T]{}
}

// Len returns the number of stored entries.
func (s *SequenceList[T]) Len() int { return len(s.ids) }

func (s *SequenceList[T]) indexOf(id uint16) (int, bool) {
	for i := len(s.ids) - 1; i >= 0; i-- {
		if s.ids[i] == id {
			return i, true
		}
	}
	return -1, false
}

// Insert stores (id, v). It returns synerr.ErrDuplicateId if id is
// already present.
func (s *SequenceList[T]) Insert(id uint16, v T) error {
	if _, ok := s.indexOf(id); ok {
		return synerr.ErrDuplicateId
	}
	i := len(s.ids)
	for i > 0 && LessThan(id, s.ids[i-1]) {
		i--
	}
	s.ids = append(s.ids, 0)
	s.vals = append(s.vals, v)
	copy(s.ids[i+1:], s.ids[i:])
	copy(s.vals[i+1:], s.vals[i:])
	s.ids[i] = id
	s.vals[i] = v
	return nil
}

// MustInsert is the permissive form of Insert: panics on duplicate id.
func (s *SequenceList[T]) MustInsert(id uint16, v T) {
	synerr.Must(s.Insert(id, v))
}

// TryInsert inserts unless id is already present, returning false
// instead of an error on collision; used by receivers deduping inbound
// traffic, where a duplicate is an expected and silent outcome.
func (s *SequenceList[T]) TryInsert(id uint16, v T) bool {
	return s.Insert(id, v) == nil
}

// Remove deletes and returns the entry for id, if present.
func (s *SequenceList[T]) Remove(id uint16) (T, bool) {
	i, ok := s.indexOf(id)
	if !ok {
		var zero T
		return zero, false
	}
	v := s.vals[i]
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	s.vals = append(s.vals[:i], s.vals[i+1:]...)
	return v, true
}

// Front returns the oldest (smallest wrapping sequence) entry.
func (s *SequenceList[T]) Front() (uint16, T, bool) {
	if len(s.ids) == 0 {
		var zero T
		return 0, zero, false
	}
	return s.ids[0], s.vals[0], true
}

// PopFront removes and returns the oldest entry.
func (s *SequenceList[T]) PopFront() (uint16, T, bool) {
	id, v, ok := s.Front()
	if ok {
		s.ids = s.ids[1:]
		s.vals = s.vals[1:]
	}
	return id, v, ok
}

// Each calls fn for every stored entry, oldest first. fn must not mutate
// the list.
func (s *SequenceList[T]) Each(fn func(id uint16, v T)) {
	for i, id := range s.ids {
		fn(id, s.vals[i])
	}
}
