package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersStartAtZeroAndIncrement(t *testing.T) {
	c := New(nil)
	if v := testutil.ToFloat64(c.PacketsSent); v != 0 {
		t.Fatalf("expected 0, got %v", v)
	}
	c.PacketsSent.Inc()
	if v := testutil.ToFloat64(c.PacketsSent); v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}
}

func TestGaugesSet(t *testing.T) {
	c := New(nil)
	c.InFlightPackets.Set(3)
	if v := testutil.ToFloat64(c.InFlightPackets); v != 3 {
		t.Fatalf("expected 3, got %v", v)
	}
}
