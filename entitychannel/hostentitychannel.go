// Package entitychannel implements C6: the per-entity channel that
// composes an authority sub-channel with one component sub-channel per
// registered component kind, on both the host (sending, strict) side
// and the remote (receiving, mirrored) side.
package entitychannel

import (
	"sync"

	"replicon"
	"replicon/authstatus"
	"replicon/subchannel"
)

// Emitted is one command released by a HostEntityChannel or
// RemoteEntityChannel, tagged with the entity (and, for component
// commands, the component kind) it applies to.
type Emitted struct {
	Global    replicon.GlobalEntity
	Component replicon.ComponentKind // zero value for auth-level commands
	Cmd       subchannel.Command
	SubCmd    replicon.SubCommandId // valid when subchannel.IsAuthoritySubCommand(Cmd.Kind)
}

// MigrateResponsePayload is the payload of a CmdMigrateResponse command:
// it tells the peer that an entity known to it as Old is now Delegated
// and addressed as New.
type MigrateResponsePayload struct {
	Old replicon.RemoteEntity
	New replicon.RemoteEntity
}

// RequestAuthorityPayload is the payload of a CmdRequestAuthority
// command: the RemoteEntity id identifying which side's delegated copy
// is asking to become authoritative.
type RequestAuthorityPayload struct {
	Remote replicon.RemoteEntity
}

// HostEntityChannel is the host-side (sending) per-entity channel.
// Spawn and Despawn are routed directly, bypassing the authority state
// machine entirely, since they concern the entity's existence rather
// than its authority or component state. Publish/Unpublish/delegation
// route through the authority sub-channel in strict mode: an illegal
// call is the local application's bug and is rejected immediately
// rather than buffered. Component insert/remove route through a
// ComponentChannel, which buffers a command illegal for the current
// state until the opposite command flips it.
type HostEntityChannel struct {
	mu         sync.Mutex
	global     replicon.GlobalEntity
	oldRemote  replicon.RemoteEntity
	newRemote  replicon.RemoteEntity
	spawned    bool
	auth       *subchannel.AuthChannel
	authCell   *authstatus.EntityAuthChannel
	nextSubCmd replicon.SubCommandId
	components map[replicon.ComponentKind]*subchannel.ComponentChannel
}

// NewHostEntityChannel returns a channel for global, with oldRemote the
// RemoteEntity id the peer originally assigned this entity (captured at
// construction so a later delegation migration can reference it), and
// initial the authority state to start in. The channel's observable
// authority status (see authstatus) starts Available, per spec, and the
// application is always considered the observing side of its own host
// channel.
func NewHostEntityChannel(global replicon.GlobalEntity, oldRemote replicon.RemoteEntity, initial subchannel.AuthState) *HostEntityChannel {
	return &HostEntityChannel{
		global:     global,
		oldRemote:  oldRemote,
		auth:       subchannel.NewAuthChannel(initial, true),
		authCell:   authstatus.New(replicon.OwnerServer, replicon.AuthAvailable, replicon.SideHost),
		components: make(map[replicon.ComponentKind]*subchannel.ComponentChannel),
	}
}

// AuthStatusAccessor returns the read-only handle an application holds
// onto this entity's observable authority status.
func (h *HostEntityChannel) AuthStatusAccessor() authstatus.EntityAuthAccessor {
	return h.authCell.Accessor()
}

// AuthState returns the channel's current authority state.
func (h *HostEntityChannel) AuthState() subchannel.AuthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.auth.State()
}

// Spawn marks the entity live and emits Spawn directly.
func (h *HostEntityChannel) Spawn() []Emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawned = true
	return []Emitted{{Global: h.global, Cmd: subchannel.Command{Kind: subchannel.CmdSpawn}}}
}

// Despawn marks the entity gone and emits Despawn directly.
func (h *HostEntityChannel) Despawn() []Emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawned = false
	return []Emitted{{Global: h.global, Cmd: subchannel.Command{Kind: subchannel.CmdDespawn}}}
}

// Spawned reports whether Spawn has been called without a subsequent
// Despawn.
func (h *HostEntityChannel) Spawned() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spawned
}

func (h *HostEntityChannel) submitAuthLocked(cmd subchannel.Command) ([]Emitted, error) {
	applied, err := h.auth.Submit(cmd)
	if err != nil {
		return nil, err
	}
	out := make([]Emitted, len(applied))
	for i, c := range applied {
		e := Emitted{Global: h.global, Cmd: c}
		if subchannel.IsAuthoritySubCommand(c.Kind) {
			e.SubCmd = h.nextSubCmd
			h.nextSubCmd++
		}
		out[i] = e
	}
	return out, nil
}

// Publish transitions Unpublished -> Published.
func (h *HostEntityChannel) Publish() ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submitAuthLocked(subchannel.Command{Kind: subchannel.CmdPublish})
}

// Unpublish transitions Published -> Unpublished.
func (h *HostEntityChannel) Unpublish() ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submitAuthLocked(subchannel.Command{Kind: subchannel.CmdUnpublish})
}

// EnableDelegation runs the three-step delegation-enable sequence: it
// first assigns newRemote as the entity's new remote-side identity
// (the internal migrate step, done before anything is emitted so
// MigrateResponse below can reference it), then emits EnableDelegation,
// then emits MigrateResponse carrying the old RemoteEntity captured at
// construction alongside the new one. A peer that only observed
// EnableDelegation without the MigrateResponse that follows it would be
// unable to reconcile which local handle the delegation applies to.
func (h *HostEntityChannel) EnableDelegation(newRemote replicon.RemoteEntity) ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.newRemote = newRemote

	enabled, err := h.submitAuthLocked(subchannel.Command{Kind: subchannel.CmdEnableDelegation})
	if err != nil {
		return nil, err
	}

	migrated, err := h.submitAuthLocked(subchannel.Command{
		Kind:    subchannel.CmdMigrateResponse,
		Payload: MigrateResponsePayload{Old: h.oldRemote, New: h.newRemote},
	})
	if err != nil {
		return nil, err
	}

	return append(enabled, migrated...), nil
}

// DisableDelegation transitions Delegated -> Published.
func (h *HostEntityChannel) DisableDelegation() ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submitAuthLocked(subchannel.Command{Kind: subchannel.CmdDisableDelegation})
}

// RequestAuthority, ReleaseAuthority and UpdateAuthority are only legal
// while Delegated. Beyond delegating to the authority sub-channel, each
// updates the entity's observable EntityAuthStatus so the application's
// AuthStatusAccessor reflects the same transition the peer is told
// about: this module's model has no separate grant round-trip, so a
// request while Delegated is immediately satisfied locally.
func (h *HostEntityChannel) RequestAuthority() ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out, err := h.submitAuthLocked(subchannel.Command{
		Kind:    subchannel.CmdRequestAuthority,
		Payload: RequestAuthorityPayload{Remote: h.newRemote},
	})
	if err != nil {
		return nil, err
	}
	h.authCell.Mutator().SetStatus(replicon.AuthRequested)
	h.authCell.Mutator().SetStatus(replicon.AuthGranted)
	return out, nil
}

func (h *HostEntityChannel) ReleaseAuthority() ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out, err := h.submitAuthLocked(subchannel.Command{Kind: subchannel.CmdReleaseAuthority})
	if err != nil {
		return nil, err
	}
	h.authCell.Mutator().SetStatus(replicon.AuthAvailable)
	return out, nil
}

// UpdateAuthority pushes an explicit status onto the authority
// sub-channel, the wire's SetAuthority(g, status) variant.
func (h *HostEntityChannel) UpdateAuthority(status replicon.EntityAuthStatus) ([]Emitted, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out, err := h.submitAuthLocked(subchannel.Command{Kind: subchannel.CmdUpdateAuthority, Payload: status})
	if err != nil {
		return nil, err
	}
	h.authCell.Mutator().SetStatus(status)
	return out, nil
}

func (h *HostEntityChannel) componentChannelLocked(kind replicon.ComponentKind) *subchannel.ComponentChannel {
	cc, ok := h.components[kind]
	if !ok {
		cc = subchannel.NewComponentChannel()
		h.components[kind] = cc
	}
	return cc
}

// InsertComponent marks kind Present on this entity.
func (h *HostEntityChannel) InsertComponent(kind replicon.ComponentKind) []Emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	applied := h.componentChannelLocked(kind).Submit(subchannel.Command{Kind: subchannel.CmdInsertComponent})
	out := make([]Emitted, len(applied))
	for i, c := range applied {
		out[i] = Emitted{Global: h.global, Component: kind, Cmd: c}
	}
	return out
}

// RemoveComponent marks kind Absent on this entity.
func (h *HostEntityChannel) RemoveComponent(kind replicon.ComponentKind) []Emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	applied := h.componentChannelLocked(kind).Submit(subchannel.Command{Kind: subchannel.CmdRemoveComponent})
	out := make([]Emitted, len(applied))
	for i, c := range applied {
		out[i] = Emitted{Global: h.global, Component: kind, Cmd: c}
	}
	return out
}

// ComponentState reports whether kind is currently Present on this
// entity. A kind never inserted reports Absent.
func (h *HostEntityChannel) ComponentState(kind replicon.ComponentKind) subchannel.CompState {
	h.mu.Lock()
	defer h.mu.Unlock()
	cc, ok := h.components[kind]
	if !ok {
		return subchannel.Absent
	}
	return cc.State()
}
