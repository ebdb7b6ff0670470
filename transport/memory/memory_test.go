package memory

import (
	"bytes"
	"testing"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	hub := NewHub()
	a := New(hub, "a")
	b := New(hub, "b")

	if err := a.Send("b", []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	from, body, ok, err := b.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !ok {
		t.Fatalf("expected a pending datagram")
	}
	if from != "a" {
		t.Fatalf("expected from a, got %s", from)
	}
	if !bytes.Equal(body, []byte("hello")) {
		t.Fatalf("expected hello, got %q", body)
	}
}

func TestReceiveWithNothingPendingReturnsFalse(t *testing.T) {
	hub := NewHub()
	a := New(hub, "a")
	_, _, ok, err := a.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no datagram pending")
	}
}

func TestSendToUnknownAddrIsSilentlyDropped(t *testing.T) {
	hub := NewHub()
	a := New(hub, "a")
	if err := a.Send("ghost", []byte("x")); err != nil {
		t.Fatalf("send to unregistered addr should not error: %v", err)
	}
}

func TestSendMutationAfterSendDoesNotAffectQueuedCopy(t *testing.T) {
	hub := NewHub()
	a := New(hub, "a")
	b := New(hub, "b")

	payload := []byte("mutable")
	if err := a.Send("b", payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload[0] = 'X'

	_, body, ok, err := b.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !ok {
		t.Fatalf("expected a pending datagram")
	}
	if !bytes.Equal(body, []byte("mutable")) {
		t.Fatalf("queued datagram should be a defensive copy, got %q", body)
	}
}

func TestCloseDeregistersEndpoint(t *testing.T) {
	hub := NewHub()
	a := New(hub, "a")
	b := New(hub, "b")

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Send("b", []byte("x")); err != nil {
		t.Fatalf("send after peer closed should not error: %v", err)
	}
	_, _, ok, err := b.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("closed endpoint should not receive anything")
	}
}

func TestFIFOOrdering(t *testing.T) {
	hub := NewHub()
	a := New(hub, "a")
	b := New(hub, "b")

	for _, msg := range []string{"one", "two", "three"} {
		if err := a.Send("b", []byte(msg)); err != nil {
			t.Fatalf("send %q: %v", msg, err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		_, body, ok, err := b.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if !ok {
			t.Fatalf("expected a pending datagram for %q", want)
		}
		if !bytes.Equal(body, []byte(want)) {
			t.Fatalf("expected %q, got %q", want, body)
		}
	}
}
