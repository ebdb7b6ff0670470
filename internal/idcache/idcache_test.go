package idcache

import (
	"testing"
	"time"
)

func TestReserveAndRelease(t *testing.T) {
	c := New[int](16, time.Minute)
	c.Reserve(1)
	if !c.IsReserved(1) {
		t.Fatalf("expected 1 reserved")
	}
	c.Release(1)
	if c.IsReserved(1) {
		t.Fatalf("expected 1 released")
	}
}

func TestReservationExpires(t *testing.T) {
	c := New[int](16, 5*time.Millisecond)
	c.Reserve(1)
	time.Sleep(20 * time.Millisecond)
	if c.IsReserved(1) {
		t.Fatalf("expected reservation to have expired")
	}
}

func TestLen(t *testing.T) {
	c := New[int](16, time.Minute)
	c.Reserve(1)
	c.Reserve(2)
	if c.Len() != 2 {
		t.Fatalf("expected 2 reserved, got %d", c.Len())
	}
}
