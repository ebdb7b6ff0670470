package synerr

import (
	"errors"
	"testing"
)

func TestErrorMessageIncludesKindAndMsg(t *testing.T) {
	e := New(KindProtocol, "illegal transition")
	if got, want := e.Error(), "synerr[protocol]: illegal transition"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindWire, "decode failed", cause)
	if got, want := e.Error(), "synerr[wire]: decode failed: boom"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !errors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindWire:          "wire",
		KindProtocol:      "protocol",
		KindConfiguration: "configuration",
		KindResource:      "resource",
		KindFatal:         "fatal",
		Kind(99):          "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestMustPanicsOnError(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected Must to panic on a non-nil error")
		}
	}()
	Must(New(KindFatal, "bookkeeping inconsistency"))
}

func TestMustNoPanicOnNil(t *testing.T) {
	Must(nil)
}

func TestMust1ReturnsValueOnSuccess(t *testing.T) {
	v := Must1(42, nil)
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestMust1PanicsOnError(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected Must1 to panic on a non-nil error")
		}
	}()
	Must1(0, New(KindResource, "channel queue full"))
}
