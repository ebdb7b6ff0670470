package fragment

import (
	"bytes"
	"math/rand"
	"testing"
)

func bigPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestSplitReassembleRoundTrip(t *testing.T) {
	payload := bigPayload(64 * 1024)
	frags, err := Split(7, []byte("hdr"), 42, payload, 1200)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if len(frags) < 50 {
		t.Fatalf("expected ~55 fragments for 64KB/1200B, got %d", len(frags))
	}

	r := NewReassembler()
	var got Completed
	for _, f := range frags {
		c, ok, err := r.Add(f)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			got = c
		}
	}
	if !bytes.Equal(got.Bytes, payload) {
		t.Fatalf("reassembled bytes mismatch")
	}
	if got.MsgIndex != 42 || !bytes.Equal(got.Header, []byte("hdr")) {
		t.Fatalf("expected first-fragment metadata preserved")
	}
}

func TestReassembleShuffledOrderWithDuplicate(t *testing.T) {
	payload := bigPayload(10_000)
	frags, err := Split(1, []byte("h"), 1, payload, 1200)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	shuffled := append([]Fragment(nil), frags...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	// Inject one duplicate of a non-first fragment.
	shuffled = append(shuffled, shuffled[len(shuffled)-1])

	r := NewReassembler()
	completions := 0
	var got Completed
	for _, f := range shuffled {
		c, ok, err := r.Add(f)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			completions++
			got = c
		}
	}
	if completions != 1 {
		t.Fatalf("expected exactly 1 reassembled message, got %d", completions)
	}
	if !bytes.Equal(got.Bytes, payload) {
		t.Fatalf("reassembled bytes mismatch under shuffled delivery")
	}
}

func TestDuplicateFirstFragmentRejected(t *testing.T) {
	frags, _ := Split(2, []byte("h"), 0, bigPayload(3000), 1200)
	r := NewReassembler()
	if _, _, err := r.Add(frags[0]); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}
	if _, _, err := r.Add(frags[0]); err == nil {
		t.Fatalf("expected duplicate first-fragment error")
	}
}

func TestDiscardReleasesInFlightGroup(t *testing.T) {
	frags, _ := Split(3, []byte("h"), 0, bigPayload(3000), 1200)
	r := NewReassembler()
	r.Add(frags[0])
	if r.InFlightGroups() != 1 {
		t.Fatalf("expected 1 in-flight group")
	}
	r.Discard(3)
	if r.InFlightGroups() != 0 {
		t.Fatalf("expected discard to release the group")
	}
}
