package subchannel

import "testing"

func TestAuthChannelStrictHappyPath(t *testing.T) {
	c := NewAuthChannel(Unpublished, true)
	if _, err := c.Submit(Command{Kind: CmdPublish}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if c.State() != Published {
		t.Fatalf("expected Published, got %v", c.State())
	}
	if _, err := c.Submit(Command{Kind: CmdEnableDelegation}); err != nil {
		t.Fatalf("enable delegation: %v", err)
	}
	if c.State() != Delegated {
		t.Fatalf("expected Delegated, got %v", c.State())
	}
	if _, err := c.Submit(Command{Kind: CmdRequestAuthority}); err != nil {
		t.Fatalf("request authority while delegated: %v", err)
	}
}

func TestAuthChannelStrictRejectsOutOfOrderMigrateResponse(t *testing.T) {
	// Scenario: MigrateResponse issued before EnableDelegation. The host
	// side refuses the command immediately with a protocol error rather
	// than parking it.
	c := NewAuthChannel(Published, true)
	if _, err := c.Submit(Command{Kind: CmdMigrateResponse}); err == nil {
		t.Fatalf("expected protocol error for out-of-order MigrateResponse")
	}
	if c.State() != Published {
		t.Fatalf("state must not change on a rejected command, got %v", c.State())
	}
}

func TestAuthChannelBufferedParksIllegalHeadUntilUnblocked(t *testing.T) {
	c := NewAuthChannel(Published, false)
	// Authority sub-command arrives before EnableDelegation: illegal, parked.
	applied, err := c.Submit(Command{Kind: CmdRequestAuthority})
	if err != nil {
		t.Fatalf("buffered mode never errors: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected nothing applied yet, got %v", applied)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected 1 parked command, got %d", c.Pending())
	}

	applied, err = c.Submit(Command{Kind: CmdEnableDelegation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected EnableDelegation to unblock the parked command, got %v", applied)
	}
	if applied[0].Kind != CmdEnableDelegation || applied[1].Kind != CmdRequestAuthority {
		t.Fatalf("expected release in buffered order, got %v", applied)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected buffer drained, got %d pending", c.Pending())
	}
}

func TestAuthChannelDisableDelegationReturnsToPublished(t *testing.T) {
	c := NewAuthChannel(Delegated, true)
	if _, err := c.Submit(Command{Kind: CmdDisableDelegation}); err != nil {
		t.Fatalf("disable delegation: %v", err)
	}
	if c.State() != Published {
		t.Fatalf("expected Published, got %v", c.State())
	}
	if _, err := c.Submit(Command{Kind: CmdRequestAuthority}); err == nil {
		t.Fatalf("expected authority sub-command to be illegal once no longer delegated")
	}
}

func TestComponentChannelHappyPath(t *testing.T) {
	c := NewComponentChannel()
	applied := c.Submit(Command{Kind: CmdInsertComponent})
	if len(applied) != 1 || c.State() != Present {
		t.Fatalf("expected insert applied, state Present, got %v %v", applied, c.State())
	}
	applied = c.Submit(Command{Kind: CmdRemoveComponent})
	if len(applied) != 1 || c.State() != Absent {
		t.Fatalf("expected remove applied, state Absent, got %v %v", applied, c.State())
	}
}

func TestComponentChannelBuffersOppositeUntilFlip(t *testing.T) {
	c := NewComponentChannel()
	applied := c.Submit(Command{Kind: CmdRemoveComponent}) // illegal while Absent
	if len(applied) != 0 || c.Pending() != 1 {
		t.Fatalf("expected remove parked, got applied=%v pending=%d", applied, c.Pending())
	}
	applied = c.Submit(Command{Kind: CmdInsertComponent})
	if len(applied) != 2 || c.State() != Absent {
		t.Fatalf("expected insert then parked remove both applied, ending Absent, got %v state=%v", applied, c.State())
	}
	if c.Pending() != 0 {
		t.Fatalf("expected queue drained, got %d", c.Pending())
	}
}
