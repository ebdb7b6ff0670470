// Package reliable implements the reliable message sender/receiver pair
// (C3): a sliding-window sequence-numbered sender with RTT-scaled
// retransmit and ACK-driven delivery notification, paired with a
// dedup + in-order receiver. It also implements the TickBuffered
// reliability mode (replace-don't-queue per tick), a feature the
// distilled spec names but leaves unelaborated; the original naia
// implementation defines its semantics this way.
package reliable

import (
	"time"

	"replicon/pkg/synerr"
	"replicon/seq"
)

// MaxInFlight bounds the number of unacked messages a sender may have in
// flight at once, keeping next_index - oldest_acked comfortably inside
// the unambiguous half of the 16-bit wrap space.
const MaxInFlight = 32767

// FlushThreshold is the distance at which the sender must stall further
// sends until the window advances, preventing wrap-around ambiguity.
const FlushThreshold = 65536 - MaxInFlight

type unackedEntry[T any] struct {
	sentAt  time.Time
	payload T
}

// OutgoingMessage pairs a payload with the MessageIndex it was assigned.
type OutgoingMessage[T any] struct {
	Index   uint16
	Payload T
}

// Sender is the C3 reliable sender: assigns monotonically increasing
// MessageIndex values, tracks unacked payloads for RTT-scaled retransmit,
// and buffers messages ready to go out until TakeNextMessages drains
// them.
type Sender[T any] struct {
	nextIndex   uint16
	unacked     *seq.SequenceList[unackedEntry[T]]
	outgoing    []OutgoingMessage[T]
	oldestAcked uint16
}

// NewSender returns an empty reliable sender.
func NewSender[T any]() *Sender[T] {
	return &Sender[T]{unacked: seq.NewSequenceList[unackedEntry[T]]()}
}

// backpressured reports whether the sender must stall new sends to avoid
// wrap-around ambiguity: next_index - oldest_acked >= flush_threshold.
func (s *Sender[T]) backpressured() bool {
	if s.unacked.Len() == 0 {
		return false
	}
	oldest, _, _ := s.unacked.Front()
	return uint16(s.nextIndex-oldest) >= FlushThreshold
}

// SendMessage assigns the next MessageIndex to p, enqueues it for
// delivery and records it as unacked. It returns synerr.ErrChannelQueueFull
// (a resource error, per spec §7) when the in-flight window is full
// rather than blocking.
func (s *Sender[T]) SendMessage(now time.Time, p T) (uint16, error) {
	if s.backpressured() {
		return 0, synerr.ErrChannelQueueFull
	}
	idx := s.nextIndex
	s.nextIndex++
	s.outgoing = append(s.outgoing, OutgoingMessage[T]{Index: idx, Payload: p})
	s.unacked.MustInsert(idx, unackedEntry[T]{sentAt: now, payload: p})
	return idx, nil
}

// PeekNextIndex returns the MessageIndex the next SendMessage call will
// assign, without assigning it. Callers that need a message's index
// before constructing its payload (C4 fragment headers carry the first
// fragment's MessageIndex) must call this and then SendMessage every
// resulting payload before anything else touches this Sender.
func (s *Sender[T]) PeekNextIndex() uint16 { return s.nextIndex }

// CollectMessages re-enqueues every unacked entry whose age is at least
// resendFactor*rtt, refreshing its sent_at so it isn't immediately
// re-selected next tick.
func (s *Sender[T]) CollectMessages(now time.Time, rtt time.Duration, resendFactor float64) {
	threshold := time.Duration(float64(rtt) * resendFactor)
	var stale []uint16
	s.unacked.Each(func(id uint16, e unackedEntry[T]) {
		if now.Sub(e.sentAt) >= threshold {
			stale = append(stale, id)
		}
	})
	for _, id := range stale {
		e, ok := s.unacked.Remove(id)
		if !ok {
			continue
		}
		e.sentAt = now
		s.unacked.MustInsert(id, e)
		s.outgoing = append(s.outgoing, OutgoingMessage[T]{Index: id, Payload: e.payload})
	}
}

// Deliver processes an ACK for MessageIndex id: removes it from the
// unacked set and returns its payload for deferred delivery
// notification (e.g. releasing an in-flight packet-tracking record).
func (s *Sender[T]) Deliver(id uint16) (T, bool) {
	e, ok := s.unacked.Remove(id)
	if ok && seq.LessThan(s.oldestAcked, id) {
		s.oldestAcked = id
	}
	return e.payload, ok
}

// TakeNextMessages drains and returns every message currently queued for
// send.
func (s *Sender[T]) TakeNextMessages() []OutgoingMessage[T] {
	out := s.outgoing
	s.outgoing = nil
	return out
}

// InFlight returns the number of currently unacked messages.
func (s *Sender[T]) InFlight() int { return s.unacked.Len() }
