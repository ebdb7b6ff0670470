// Package subchannel implements the per-entity sub-channel state
// machines (C5): AuthChannel, the three-state authority-delegation
// machine, and ComponentChannel, the two-state insert/remove machine.
// Both buffer out-of-order arrivals and release them only once the head
// of the buffer is legal for the current state.
package subchannel

// CommandKind enumerates every entity-command variant that flows
// through a sub-channel's state machine or its authority sub-channel.
type CommandKind uint8

const (
	CmdSpawn CommandKind = iota
	CmdDespawn
	CmdPublish
	CmdUnpublish
	CmdEnableDelegation
	CmdDisableDelegation
	CmdUpdateAuthority
	CmdInsertComponent
	CmdRemoveComponent
	CmdRequestAuthority
	CmdReleaseAuthority
	CmdEnableDelegationResponse
	CmdMigrateResponse

	// CmdMutation addresses a component mutation mask rather than a
	// sub-channel state transition; it never reaches AuthChannel or
	// ComponentChannel, only the wire codec and hostworld/remoteworld.
	CmdMutation
)

// IsAuthoritySubCommand reports whether k is one of the four
// authority sub-commands that are legal only while an AuthChannel is
// Delegated and never advance its state.
func IsAuthoritySubCommand(k CommandKind) bool {
	switch k {
	case CmdRequestAuthority, CmdReleaseAuthority, CmdEnableDelegationResponse, CmdMigrateResponse:
		return true
	default:
		return false
	}
}

// Command is one entity command or authority sub-command passing
// through a sub-channel, carrying an opaque payload the channel itself
// never inspects.
type Command struct {
	Kind    CommandKind
	Payload any
}
