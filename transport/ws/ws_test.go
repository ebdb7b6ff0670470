package ws

import (
	"bytes"
	"testing"
	"time"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	a, err := Listen("127.0.0.1:0", 4, time.Minute, nil)
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	defer a.Close()
	b, err := Listen("127.0.0.1:0", 4, time.Minute, nil)
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	defer b.Close()

	if err := a.Send(b.LocalAddr(), []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_, body, ok, err := b.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if !bytes.Equal(body, []byte("hello")) {
			t.Fatalf("expected hello, got %q", body)
		}
		return
	}
	t.Fatalf("timed out waiting for datagram")
}
