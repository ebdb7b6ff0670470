package entitychannel

import (
	"testing"

	"replicon"
	"replicon/subchannel"
)

func TestHostEntityChannelSpawnDespawnBypassAuthState(t *testing.T) {
	h := NewHostEntityChannel(1, 10, subchannel.Unpublished)
	emitted := h.Spawn()
	if len(emitted) != 1 || emitted[0].Cmd.Kind != subchannel.CmdSpawn {
		t.Fatalf("expected a single Spawn emission, got %v", emitted)
	}
	if !h.Spawned() {
		t.Fatalf("expected spawned")
	}
	// Auth state is untouched by Spawn.
	if h.AuthState() != subchannel.Unpublished {
		t.Fatalf("expected Spawn not to affect auth state, got %v", h.AuthState())
	}
}

func TestHostEntityChannelEnableDelegationEmitsMigrateResponseWithOldRemote(t *testing.T) {
	h := NewHostEntityChannel(1, 10, subchannel.Published)
	emitted, err := h.EnableDelegation(20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected EnableDelegation + MigrateResponse, got %v", emitted)
	}
	if emitted[0].Cmd.Kind != subchannel.CmdEnableDelegation {
		t.Fatalf("expected first emission EnableDelegation, got %v", emitted[0].Cmd.Kind)
	}
	if emitted[1].Cmd.Kind != subchannel.CmdMigrateResponse {
		t.Fatalf("expected second emission MigrateResponse, got %v", emitted[1].Cmd.Kind)
	}
	payload, ok := emitted[1].Cmd.Payload.(MigrateResponsePayload)
	if !ok {
		t.Fatalf("expected MigrateResponsePayload, got %T", emitted[1].Cmd.Payload)
	}
	if payload.Old != 10 || payload.New != 20 {
		t.Fatalf("expected old=10 new=20, got old=%d new=%d", payload.Old, payload.New)
	}
	if h.AuthState() != subchannel.Delegated {
		t.Fatalf("expected Delegated, got %v", h.AuthState())
	}
}

func TestHostEntityChannelRejectsAuthorityOutsideDelegated(t *testing.T) {
	h := NewHostEntityChannel(1, 10, subchannel.Published)
	if _, err := h.RequestAuthority(); err == nil {
		t.Fatalf("expected error requesting authority while Published")
	}
}

func TestHostEntityChannelComponentLifecycle(t *testing.T) {
	h := NewHostEntityChannel(1, 10, subchannel.Unpublished)
	kind := replicon.ComponentKind{}
	emitted := h.InsertComponent(kind)
	if len(emitted) != 1 || h.ComponentState(kind) != subchannel.Present {
		t.Fatalf("expected insert applied, got %v state=%v", emitted, h.ComponentState(kind))
	}
	emitted = h.RemoveComponent(kind)
	if len(emitted) != 1 || h.ComponentState(kind) != subchannel.Absent {
		t.Fatalf("expected remove applied, got %v state=%v", emitted, h.ComponentState(kind))
	}
}

func TestRemoteEntityChannelMirrorsStateAndReportsIllegalTransition(t *testing.T) {
	r := NewRemoteEntityChannel(1, subchannel.Unpublished)
	emitted, err := r.ApplyAuth(subchannel.Command{Kind: subchannel.CmdPublish})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitted) != 1 || emitted[0].Cmd.Kind != subchannel.CmdPublish {
		t.Fatalf("expected a single Publish emission, got %v", emitted)
	}
	if r.AuthState() != subchannel.Published {
		t.Fatalf("expected Published, got %v", r.AuthState())
	}

	_, err = r.ApplyAuth(subchannel.Command{Kind: subchannel.CmdMigrateResponse})
	if err == nil {
		t.Fatalf("expected RemoteWorldError for MigrateResponse before EnableDelegation")
	}
	var rwe *RemoteWorldError
	if rwe, _ = err.(*RemoteWorldError); rwe == nil {
		t.Fatalf("expected *RemoteWorldError, got %T", err)
	}
	if rwe.Global != 1 {
		t.Fatalf("expected error tagged with global entity 1, got %d", rwe.Global)
	}
}

func TestRemoteEntityChannelSpawnDespawnNeverError(t *testing.T) {
	r := NewRemoteEntityChannel(1, subchannel.Unpublished)
	emitted := r.ApplySpawn()
	if len(emitted) != 1 || emitted[0].Cmd.Kind != subchannel.CmdSpawn {
		t.Fatalf("expected a single Spawn emission, got %v", emitted)
	}
	if !r.Spawned() {
		t.Fatalf("expected spawned")
	}
	emitted = r.ApplyDespawn()
	if len(emitted) != 1 || emitted[0].Cmd.Kind != subchannel.CmdDespawn {
		t.Fatalf("expected a single Despawn emission, got %v", emitted)
	}
	if r.Spawned() {
		t.Fatalf("expected despawned")
	}
}

func TestRemoteEntityChannelComponentLifecycle(t *testing.T) {
	r := NewRemoteEntityChannel(1, subchannel.Unpublished)
	kind := replicon.ComponentKind{}
	emitted := r.ApplyInsertComponent(kind)
	if len(emitted) != 1 || r.ComponentState(kind) != subchannel.Present {
		t.Fatalf("expected insert applied, got %v state=%v", emitted, r.ComponentState(kind))
	}
	emitted = r.ApplyRemoveComponent(kind)
	if len(emitted) != 1 || r.ComponentState(kind) != subchannel.Absent {
		t.Fatalf("expected remove applied, got %v state=%v", emitted, r.ComponentState(kind))
	}
}

func TestRemoteEntityChannelRequestAuthorityReportsGrantedTwice(t *testing.T) {
	r := NewRemoteEntityChannel(3, subchannel.Delegated)
	var granted int
	observe := func() {
		snap, err := r.AuthStatusAccessor().Read()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Status == replicon.AuthGranted {
			granted++
		}
	}

	if _, err := r.ApplyAuth(subchannel.Command{Kind: subchannel.CmdRequestAuthority}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	observe()
	if _, err := r.ApplyAuth(subchannel.Command{Kind: subchannel.CmdReleaseAuthority}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.ApplyAuth(subchannel.Command{Kind: subchannel.CmdRequestAuthority}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	observe()

	if granted != 2 {
		t.Fatalf("expected Granted observed exactly twice, got %d", granted)
	}
}
