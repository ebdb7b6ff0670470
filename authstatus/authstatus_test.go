package authstatus

import (
	"testing"

	"replicon"
)

func TestAccessorReadsMutatorWrites(t *testing.T) {
	ch := New(replicon.OwnerServer, replicon.AuthAvailable, replicon.SideHost)
	mut := ch.Mutator()
	acc := ch.Accessor()

	if err := mut.SetStatus(replicon.AuthRequested); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mut.SetObserver(replicon.SideRemote); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := acc.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != replicon.AuthRequested || snap.Observer != replicon.SideRemote {
		t.Fatalf("expected accessor to see mutator's writes, got %+v", snap)
	}
}

func TestPoisonedChannelFailsFastOnFurtherAccess(t *testing.T) {
	ch := New(replicon.OwnerServer, replicon.AuthAvailable, replicon.SideHost)

	func() {
		defer func() { recover() }()
		ch.withLock(func() { panic("boom") })
	}()

	if _, err := ch.Accessor().Read(); err == nil {
		t.Fatalf("expected ErrAuthLockPoisoned after a panic under the lock")
	}
	if err := ch.Mutator().SetStatus(replicon.AuthGranted); err == nil {
		t.Fatalf("expected ErrAuthLockPoisoned for mutation after poisoning")
	}
}
