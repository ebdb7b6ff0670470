package replicon

import "testing"

func TestNewGlobalEntityRecordReplicationConfig(t *testing.T) {
	server := NewGlobalEntityRecord(OwnerServer)
	if server.ReplicationConfig != ReplicationPublic {
		t.Errorf("server-owned record config = %v, want Public", server.ReplicationConfig)
	}
	client := NewGlobalEntityRecord(OwnerClient)
	if client.ReplicationConfig != ReplicationPrivate {
		t.Errorf("client-owned record config = %v, want Private", client.ReplicationConfig)
	}
}

func TestNewGlobalEntityRecordRejectsLocalOwner(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewGlobalEntityRecord(OwnerLocal) did not panic")
		}
	}()
	NewGlobalEntityRecord(OwnerLocal)
}

func TestEntityAuthStatusString(t *testing.T) {
	cases := map[EntityAuthStatus]string{
		AuthAvailable: "Available",
		AuthRequested: "Requested",
		AuthGranted:   "Granted",
		AuthDenied:    "Denied",
		AuthReleasing: "Releasing",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", status, got, want)
		}
	}
}

func TestEntitySideString(t *testing.T) {
	if got := SideHost.String(); got != "host" {
		t.Errorf("SideHost.String() = %q, want host", got)
	}
	if got := SideRemote.String(); got != "remote" {
		t.Errorf("SideRemote.String() = %q, want remote", got)
	}
}

func TestComponentKindRoundTripsThroughID(t *testing.T) {
	k := ComponentKindFromID(42)
	if got := ComponentKindID(k); got != 42 {
		t.Errorf("ComponentKindID(ComponentKindFromID(42)) = %d, want 42", got)
	}
}

func TestChannelKindRoundTripsThroughID(t *testing.T) {
	k := ChannelKindFromID(7)
	if got := ChannelKindID(k); got != 7 {
		t.Errorf("ChannelKindID(ChannelKindFromID(7)) = %d, want 7", got)
	}
}
