package replicon

import "testing"

func TestRegisterComponentIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.RegisterComponent("Position")
	b := r.RegisterComponent("Position")
	if a != b {
		t.Fatalf("RegisterComponent(\"Position\") returned %v then %v, want same kind", a, b)
	}
	if a == (ComponentKind{}) {
		t.Fatalf("RegisterComponent returned the zero kind, want a minted one")
	}
	if name := r.ComponentName(a); name != "Position" {
		t.Errorf("ComponentName(%v) = %q, want Position", a, name)
	}
}

func TestComponentKindZeroValueUnregistered(t *testing.T) {
	r := NewRegistry()
	if r.IsRegisteredComponent(ComponentKind{}) {
		t.Error("zero-value ComponentKind reported as registered")
	}
	k := r.RegisterComponent("Velocity")
	if !r.IsRegisteredComponent(k) {
		t.Error("freshly registered ComponentKind reported as unregistered")
	}
}

func TestRegisterComponentDistinctNamesDistinctKinds(t *testing.T) {
	r := NewRegistry()
	a := r.RegisterComponent("Position")
	b := r.RegisterComponent("Velocity")
	if a == b {
		t.Fatalf("distinct component names minted the same kind %v", a)
	}
}

func TestRegisterChannelKeepsFirstSettings(t *testing.T) {
	r := NewRegistry()
	first := ChannelSettings{Direction: ClientToServer, Reliability: Reliable, CanFragment: true}
	second := ChannelSettings{Direction: ServerToClient, Reliability: Unreliable, CanFragment: false}

	k1 := r.RegisterChannel("chat", first)
	k2 := r.RegisterChannel("chat", second)
	if k1 != k2 {
		t.Fatalf("RegisterChannel(\"chat\", ...) returned %v then %v, want same kind", k1, k2)
	}

	got, ok := r.ChannelSettingsFor(k1)
	if !ok {
		t.Fatal("ChannelSettingsFor reported the registered channel as unregistered")
	}
	if got != first {
		t.Errorf("ChannelSettingsFor(%v) = %+v, want settings from the first registration %+v", k1, got, first)
	}
}

func TestChannelSettingsForUnregistered(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.ChannelSettingsFor(ChannelKind{}); ok {
		t.Error("ChannelSettingsFor reported the zero ChannelKind as registered")
	}
}
