package wire

import (
	"bytes"
	"testing"

	"replicon"
	"replicon/subchannel"
)

func TestBitWriterReaderRoundTripMixedWidths(t *testing.T) {
	w := NewBitWriter()
	w.WriteBit(true)
	w.WriteBit(false)
	w.WriteMinWidth(4, 5) // 3 bits wide (covers 0..4)
	w.WriteU16(0xBEEF)
	w.WriteU32(0xCAFEBABE)
	w.WriteBytes([]byte("hi"))

	r := NewBitReader(w.Bytes())
	b1, _ := r.ReadBit()
	b2, _ := r.ReadBit()
	mw, _ := r.ReadMinWidth(5)
	u16, _ := r.ReadU16()
	u32, _ := r.ReadU32()
	bs, _ := r.ReadBytes(2)

	if !b1 || b2 {
		t.Fatalf("expected true,false got %v,%v", b1, b2)
	}
	if mw != 4 {
		t.Fatalf("expected minwidth 4, got %d", mw)
	}
	if u16 != 0xBEEF {
		t.Fatalf("expected 0xBEEF, got %x", u16)
	}
	if u32 != 0xCAFEBABE {
		t.Fatalf("expected 0xCAFEBABE, got %x", u32)
	}
	if !bytes.Equal(bs, []byte("hi")) {
		t.Fatalf("expected hi, got %q", bs)
	}
}

func TestBitReaderTruncatedErrors(t *testing.T) {
	r := NewBitReader([]byte{0xFF})
	if _, err := r.ReadU32(); err == nil {
		t.Fatalf("expected truncation error")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{Type: PacketHeartbeat, PacketIndex: 42, Payload: []byte("payload")}
	decoded, err := DecodeFrame(EncodeFrame(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Type != f.Type || decoded.PacketIndex != f.PacketIndex || !bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestInvalidPacketTypeRejected(t *testing.T) {
	w := NewBitWriter()
	w.WriteMinWidth(31, 32) // out of range for packetTypeCount=6
	w.WriteU16(0)
	if _, err := DecodeFrame(w.Bytes()); err == nil {
		t.Fatalf("expected invalid packet type error")
	}
}

func TestCommandBatchRoundTrip(t *testing.T) {
	cmds := []EntityCommand{
		{Kind: subchannel.CmdSpawn, Target: 7, Component: replicon.ComponentKind{}, Body: nil},
		{Kind: subchannel.CmdInsertComponent, Target: 7, Component: replicon.ComponentKindFromID(3), Body: []byte("xyz")},
	}
	decoded, err := ReadCommands(WriteCommands(cmds))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(decoded))
	}
	if decoded[1].Kind != subchannel.CmdInsertComponent || !bytes.Equal(decoded[1].Body, []byte("xyz")) {
		t.Fatalf("unexpected second command: %+v", decoded[1])
	}
	if replicon.ComponentKindID(decoded[1].Component) != 3 {
		t.Fatalf("expected component id 3, got %d", replicon.ComponentKindID(decoded[1].Component))
	}
}

func TestCommandRoundTripCarriesAuthorityFields(t *testing.T) {
	cmds := []EntityCommand{
		{Kind: subchannel.CmdUpdateAuthority, Target: 1, Status: replicon.AuthGranted},
		{Kind: subchannel.CmdRequestAuthority, Target: 2, SubCmd: 5, Remote: 9},
		{Kind: subchannel.CmdMigrateResponse, Target: 3, SubCmd: 6, NewHost: 42},
	}
	decoded, err := ReadCommands(WriteCommands(cmds))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded[0].Status != replicon.AuthGranted {
		t.Fatalf("expected Status=Granted, got %v", decoded[0].Status)
	}
	if decoded[1].SubCmd != 5 || decoded[1].Remote != 9 {
		t.Fatalf("expected SubCmd=5 Remote=9, got %+v", decoded[1])
	}
	if decoded[2].SubCmd != 6 || decoded[2].NewHost != 42 {
		t.Fatalf("expected SubCmd=6 NewHost=42, got %+v", decoded[2])
	}
}
