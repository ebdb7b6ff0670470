package entitychannel

import (
	"fmt"
	"sync"

	"replicon"
	"replicon/authstatus"
	"replicon/subchannel"
)

// RemoteWorldError reports a protocol-level violation observed while
// applying an inbound command to a RemoteEntityChannel: an authority
// transition that is illegal for the channel's current state.
// It is always returned, never panicked, since an illegal transition
// observed from the network is the peer's fault, not a local
// programming error.
type RemoteWorldError struct {
	Global replicon.GlobalEntity
	Err    error
}

func (e *RemoteWorldError) Error() string {
	return fmt.Sprintf("remote entity %d: %v", e.Global, e.Err)
}

func (e *RemoteWorldError) Unwrap() error { return e.Err }

// RemoteEntityChannel mirrors HostEntityChannel's state machine in
// reverse: it applies commands received from the reliable channel in
// causal order, enforcing the same legal-transition language. Like the
// host side it never panics; an illegal authority transition is reported as a
// *RemoteWorldError so the caller can decide how to treat a misbehaving
// peer.
type RemoteEntityChannel struct {
	mu         sync.Mutex
	global     replicon.GlobalEntity
	spawned    bool
	auth       *subchannel.AuthChannel
	authCell   *authstatus.EntityAuthChannel
	components map[replicon.ComponentKind]*subchannel.ComponentChannel
}

// NewRemoteEntityChannel returns a channel for global starting in
// initial authority state.
func NewRemoteEntityChannel(global replicon.GlobalEntity, initial subchannel.AuthState) *RemoteEntityChannel {
	return &RemoteEntityChannel{
		global:     global,
		auth:       subchannel.NewAuthChannel(initial, true),
		authCell:   authstatus.New(replicon.OwnerClient, replicon.AuthRequested, replicon.SideRemote),
		components: make(map[replicon.ComponentKind]*subchannel.ComponentChannel),
	}
}

// AuthState returns the channel's current authority state.
func (r *RemoteEntityChannel) AuthState() subchannel.AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auth.State()
}

// AuthStatusAccessor returns the read-only handle an application holds
// onto this mirrored entity's observable authority status.
func (r *RemoteEntityChannel) AuthStatusAccessor() authstatus.EntityAuthAccessor {
	return r.authCell.Accessor()
}

// ApplySpawn marks the entity live; always legal. It returns the Spawn
// event so callers can fold it into the same application-facing event
// stream a HostEntityChannel produces on the send side.
func (r *RemoteEntityChannel) ApplySpawn() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned = true
	return []Emitted{{Global: r.global, Cmd: subchannel.Command{Kind: subchannel.CmdSpawn}}}
}

// ApplyDespawn marks the entity gone; always legal.
func (r *RemoteEntityChannel) ApplyDespawn() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned = false
	return []Emitted{{Global: r.global, Cmd: subchannel.Command{Kind: subchannel.CmdDespawn}}}
}

// Spawned reports whether ApplySpawn has been called without a
// subsequent ApplyDespawn.
func (r *RemoteEntityChannel) Spawned() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawned
}

// ApplyAuth feeds an inbound authority command (Publish, Unpublish,
// EnableDelegation, DisableDelegation, UpdateAuthority, or one of the
// authority sub-commands) into the mirrored state machine, updating the
// entity's observable EntityAuthStatus alongside it, and returns the
// Emitted batch so the caller can fold it into the application-facing
// event stream.
func (r *RemoteEntityChannel) ApplyAuth(cmd subchannel.Command) ([]Emitted, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied, err := r.auth.Submit(cmd)
	if err != nil {
		return nil, &RemoteWorldError{Global: r.global, Err: err}
	}
	out := make([]Emitted, len(applied))
	for i, c := range applied {
		out[i] = Emitted{Global: r.global, Cmd: c}
		r.updateAuthStatusLocked(c)
	}
	return out, nil
}

// updateAuthStatusLocked mirrors the status transition a HostEntityChannel
// applies locally for the same command, so both sides' AuthStatusAccessor
// agree on an entity's authority status. Like the host side, a request
// while Delegated is granted immediately: this model has no separate
// network round-trip for the grant itself.
func (r *RemoteEntityChannel) updateAuthStatusLocked(cmd subchannel.Command) {
	mut := r.authCell.Mutator()
	switch cmd.Kind {
	case subchannel.CmdRequestAuthority:
		mut.SetStatus(replicon.AuthRequested)
		mut.SetStatus(replicon.AuthGranted)
	case subchannel.CmdReleaseAuthority:
		mut.SetStatus(replicon.AuthAvailable)
	case subchannel.CmdUpdateAuthority:
		if st, ok := cmd.Payload.(replicon.EntityAuthStatus); ok {
			mut.SetStatus(st)
		}
	}
}

func (r *RemoteEntityChannel) componentChannelLocked(kind replicon.ComponentKind) *subchannel.ComponentChannel {
	cc, ok := r.components[kind]
	if !ok {
		cc = subchannel.NewComponentChannel()
		r.components[kind] = cc
	}
	return cc
}

// ApplyInsertComponent marks kind Present on this entity.
func (r *RemoteEntityChannel) ApplyInsertComponent(kind replicon.ComponentKind) []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied := r.componentChannelLocked(kind).Submit(subchannel.Command{Kind: subchannel.CmdInsertComponent})
	out := make([]Emitted, len(applied))
	for i, c := range applied {
		out[i] = Emitted{Global: r.global, Component: kind, Cmd: c}
	}
	return out
}

// ApplyRemoveComponent marks kind Absent on this entity.
func (r *RemoteEntityChannel) ApplyRemoveComponent(kind replicon.ComponentKind) []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied := r.componentChannelLocked(kind).Submit(subchannel.Command{Kind: subchannel.CmdRemoveComponent})
	out := make([]Emitted, len(applied))
	for i, c := range applied {
		out[i] = Emitted{Global: r.global, Component: kind, Cmd: c}
	}
	return out
}

// ComponentState reports whether kind is currently Present on this
// entity. A kind never inserted reports Absent.
func (r *RemoteEntityChannel) ComponentState(kind replicon.ComponentKind) subchannel.CompState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc, ok := r.components[kind]
	if !ok {
		return subchannel.Absent
	}
	return cc.State()
}
