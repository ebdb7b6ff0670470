// Package adapter turns the engine/entitychannel layer's internal
// Emitted/SystemMessage values into the application-facing EntityEvent
// stream named by the module's external interface, the "game-engine
// adapter" spec §1 leaves out of this module's scope. It is a thin
// translator, not a second source of truth: every EntityEvent mirrors
// something the core already decided.
package adapter

import (
	"replicon"
	"replicon/entitychannel"
	"replicon/subchannel"
)

// EntityEventKind tags one variant of the application-facing event
// stream, one entry per spec §6's EntityEvent list.
type EntityEventKind uint8

const (
	EvtSpawnEntity EntityEventKind = iota
	EvtDespawnEntity
	EvtInsertComponent
	EvtUpdateComponent
	EvtRemoveComponent
	EvtPublishEntity
	EvtUnpublishEntity
	EvtEnableDelegationEntity
	EvtEnableDelegationEntityResponse
	EvtDisableDelegationEntity
	EvtEntityRequestAuthority
	EvtEntityReleaseAuthority
	EvtEntityUpdateAuthority
	EvtEntityMigrateResponse
)

// EntityEvent is one item of the lazy application-facing event stream.
type EntityEvent struct {
	Kind      EntityEventKind
	Global    replicon.GlobalEntity
	Component replicon.ComponentKind
	Status    replicon.EntityAuthStatus // valid for EvtEntityUpdateAuthority
	Remote    replicon.RemoteEntity     // valid for EvtEntityRequestAuthority
	NewHost   replicon.RemoteEntity     // valid for EvtEntityMigrateResponse
}

// TranslateEmitted converts one host-side entitychannel.Emitted into
// its EntityEvent, or ok=false if it carries no application-visible
// meaning (there are none today, but Emitted's Cmd is open-ended).
func TranslateEmitted(e entitychannel.Emitted) (EntityEvent, bool) {
	base := EntityEvent{Global: e.Global, Component: e.Component}
	switch e.Cmd.Kind {
	case subchannel.CmdSpawn:
		base.Kind = EvtSpawnEntity
	case subchannel.CmdDespawn:
		base.Kind = EvtDespawnEntity
	case subchannel.CmdPublish:
		base.Kind = EvtPublishEntity
	case subchannel.CmdUnpublish:
		base.Kind = EvtUnpublishEntity
	case subchannel.CmdEnableDelegation:
		base.Kind = EvtEnableDelegationEntity
	case subchannel.CmdDisableDelegation:
		base.Kind = EvtDisableDelegationEntity
	case subchannel.CmdInsertComponent:
		base.Kind = EvtInsertComponent
	case subchannel.CmdRemoveComponent:
		base.Kind = EvtRemoveComponent
	case subchannel.CmdMutation:
		base.Kind = EvtUpdateComponent
	case subchannel.CmdRequestAuthority:
		base.Kind = EvtEntityRequestAuthority
		if p, ok := e.Cmd.Payload.(entitychannel.RequestAuthorityPayload); ok {
			base.Remote = p.Remote
		}
	case subchannel.CmdReleaseAuthority:
		base.Kind = EvtEntityReleaseAuthority
	case subchannel.CmdUpdateAuthority:
		base.Kind = EvtEntityUpdateAuthority
		if st, ok := e.Cmd.Payload.(replicon.EntityAuthStatus); ok {
			base.Status = st
		}
	case subchannel.CmdEnableDelegationResponse:
		base.Kind = EvtEnableDelegationEntityResponse
	case subchannel.CmdMigrateResponse:
		base.Kind = EvtEntityMigrateResponse
		if p, ok := e.Cmd.Payload.(entitychannel.MigrateResponsePayload); ok {
			base.NewHost = p.New
		}
	default:
		return EntityEvent{}, false
	}
	return base, true
}

// TranslateEmittedBatch maps TranslateEmitted over a batch, dropping
// anything with no application-visible meaning.
func TranslateEmittedBatch(batch []entitychannel.Emitted) []EntityEvent {
	out := make([]EntityEvent, 0, len(batch))
	for _, e := range batch {
		if evt, ok := TranslateEmitted(e); ok {
			out = append(out, evt)
		}
	}
	return out
}
