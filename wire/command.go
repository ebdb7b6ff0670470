package wire

import (
	"replicon"
	"replicon/subchannel"
)

// commandKindCount mirrors the number of subchannel.CommandKind variants.
const commandKindCount = 14

// EntityCommand is one wire-level entity command: a sub-channel
// command kind addressed at a HostEntity/ComponentKind pair, with an
// opaque, length-prefixed body (the component's serialized bytes, or
// empty for commands that carry no payload of their own).
//
// SubCmd, Status, Remote and NewHost are only meaningful for the
// command kinds that carry them and are omitted from the wire
// encoding otherwise: SubCmd tags every authority sub-command with its
// SubCommandId, Status carries UpdateAuthority's new EntityAuthStatus,
// Remote carries RequestAuthority's requesting peer id, and NewHost
// carries MigrateResponse's new host id.
type EntityCommand struct {
	Kind      subchannel.CommandKind
	Target    replicon.HostEntity
	Component replicon.ComponentKind
	SubCmd    replicon.SubCommandId
	Status    replicon.EntityAuthStatus
	Remote    replicon.RemoteEntity
	NewHost   replicon.RemoteEntity
	Body      []byte
}

// WriteCommand appends cmd to w.
func WriteCommand(w *BitWriter, cmd EntityCommand) {
	w.WriteMinWidth(uint64(cmd.Kind), commandKindCount)
	w.WriteU16(uint16(cmd.Target))
	w.WriteU16(replicon.ComponentKindID(cmd.Component))
	if subchannel.IsAuthoritySubCommand(cmd.Kind) {
		w.WriteByte(byte(cmd.SubCmd))
	}
	switch cmd.Kind {
	case subchannel.CmdUpdateAuthority:
		w.WriteByte(byte(cmd.Status))
	case subchannel.CmdRequestAuthority:
		w.WriteU16(uint16(cmd.Remote))
	case subchannel.CmdMigrateResponse:
		w.WriteU16(uint16(cmd.NewHost))
	}
	w.WriteU16(uint16(len(cmd.Body)))
	w.WriteBytes(cmd.Body)
}

// ReadCommand reads one EntityCommand from r.
func ReadCommand(r *BitReader) (EntityCommand, error) {
	k, err := r.ReadMinWidth(commandKindCount)
	if err != nil {
		return EntityCommand{}, err
	}
	target, err := r.ReadU16()
	if err != nil {
		return EntityCommand{}, err
	}
	compID, err := r.ReadU16()
	if err != nil {
		return EntityCommand{}, err
	}
	kind := subchannel.CommandKind(k)
	cmd := EntityCommand{
		Kind:      kind,
		Target:    replicon.HostEntity(target),
		Component: replicon.ComponentKindFromID(compID),
	}
	if subchannel.IsAuthoritySubCommand(kind) {
		sub, err := r.ReadByte()
		if err != nil {
			return EntityCommand{}, err
		}
		cmd.SubCmd = replicon.SubCommandId(sub)
	}
	switch kind {
	case subchannel.CmdUpdateAuthority:
		st, err := r.ReadByte()
		if err != nil {
			return EntityCommand{}, err
		}
		cmd.Status = replicon.EntityAuthStatus(st)
	case subchannel.CmdRequestAuthority:
		remote, err := r.ReadU16()
		if err != nil {
			return EntityCommand{}, err
		}
		cmd.Remote = replicon.RemoteEntity(remote)
	case subchannel.CmdMigrateResponse:
		newHost, err := r.ReadU16()
		if err != nil {
			return EntityCommand{}, err
		}
		cmd.NewHost = replicon.RemoteEntity(newHost)
	}
	bodyLen, err := r.ReadU16()
	if err != nil {
		return EntityCommand{}, err
	}
	body, err := r.ReadBytes(int(bodyLen))
	if err != nil {
		return EntityCommand{}, err
	}
	cmd.Body = body
	return cmd, nil
}

// WriteCommands appends a length-prefixed batch of commands, the shape
// of one Data frame's payload.
func WriteCommands(cmds []EntityCommand) []byte {
	w := NewBitWriter()
	w.WriteU16(uint16(len(cmds)))
	for _, c := range cmds {
		WriteCommand(w, c)
	}
	return w.Bytes()
}

// ReadCommands decodes a batch written by WriteCommands.
func ReadCommands(b []byte) ([]EntityCommand, error) {
	r := NewBitReader(b)
	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	out := make([]EntityCommand, 0, count)
	for i := 0; i < int(count); i++ {
		cmd, err := ReadCommand(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}
