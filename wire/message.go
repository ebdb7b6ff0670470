package wire

import "replicon/fragment"

// MessageKind distinguishes a plain reliable-channel payload from a C4
// fragment slice travelling under its own MessageIndex (see the
// fragment package doc: each fragment is its own reliable message).
type MessageKind uint8

const (
	MessagePlain MessageKind = iota
	MessageFragment
)

const messageKindCount = 2

// IndexedMessage is one slot of a reliable channel's outgoing or
// inbound batch: the MessageIndex it travels under, plus either a
// plain application payload tagged with its ChannelKind id or an
// encoded C4 fragment (Channel is meaningless for a fragment; its
// destination channel travels inside the fragment's own header).
type IndexedMessage struct {
	Index   uint16
	Kind    MessageKind
	Channel uint16
	Body    []byte
}

// WriteMessage appends one IndexedMessage to w.
func WriteMessage(w *BitWriter, m IndexedMessage) {
	w.WriteU16(m.Index)
	w.WriteMinWidth(uint64(m.Kind), messageKindCount)
	if m.Kind == MessagePlain {
		w.WriteU16(m.Channel)
	}
	w.WriteU32(uint32(len(m.Body)))
	w.WriteBytes(m.Body)
}

// ReadMessage reads one IndexedMessage written by WriteMessage.
func ReadMessage(r *BitReader) (IndexedMessage, error) {
	idx, err := r.ReadU16()
	if err != nil {
		return IndexedMessage{}, err
	}
	k, err := r.ReadMinWidth(messageKindCount)
	if err != nil {
		return IndexedMessage{}, err
	}
	m := IndexedMessage{Index: idx, Kind: MessageKind(k)}
	if m.Kind == MessagePlain {
		ch, err := r.ReadU16()
		if err != nil {
			return IndexedMessage{}, err
		}
		m.Channel = ch
	}
	n, err := r.ReadU32()
	if err != nil {
		return IndexedMessage{}, err
	}
	body, err := r.ReadBytes(int(n))
	if err != nil {
		return IndexedMessage{}, err
	}
	m.Body = body
	return m, nil
}

// WriteMessages appends a length-prefixed batch of messages, the shape
// of a Data frame payload's reliable-channel section.
func WriteMessages(msgs []IndexedMessage) []byte {
	w := NewBitWriter()
	w.WriteU16(uint16(len(msgs)))
	for _, m := range msgs {
		WriteMessage(w, m)
	}
	return w.Bytes()
}

// ReadMessages decodes a batch written by WriteMessages.
func ReadMessages(b []byte) ([]IndexedMessage, error) {
	r := NewBitReader(b)
	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	out := make([]IndexedMessage, 0, count)
	for i := 0; i < int(count); i++ {
		m, err := ReadMessage(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// EncodeDataPayload combines an already-encoded EntityCommand batch and
// an already-encoded IndexedMessage batch into one Data frame payload,
// so one packet carries both the entity/mutation traffic and the
// reliable user-message traffic without the two codecs knowing about
// each other.
func EncodeDataPayload(cmds, msgs []byte) []byte {
	w := NewBitWriter()
	w.WriteU32(uint32(len(cmds)))
	w.WriteBytes(cmds)
	w.WriteU32(uint32(len(msgs)))
	w.WriteBytes(msgs)
	return w.Bytes()
}

// DecodeDataPayload splits a Data frame payload written by
// EncodeDataPayload back into its command and message sections.
func DecodeDataPayload(b []byte) (cmds, msgs []byte, err error) {
	r := NewBitReader(b)
	n, err := r.ReadU32()
	if err != nil {
		return nil, nil, err
	}
	cmds, err = r.ReadBytes(int(n))
	if err != nil {
		return nil, nil, err
	}
	n, err = r.ReadU32()
	if err != nil {
		return nil, nil, err
	}
	msgs, err = r.ReadBytes(int(n))
	if err != nil {
		return nil, nil, err
	}
	return cmds, msgs, nil
}

// EncodeMessageHeader packs a fragmented message's destination channel
// id into the bytes fragment.Split carries as its first fragment's
// Header, so the receiver can recover it once reassembly completes.
func EncodeMessageHeader(channel uint16) []byte {
	w := NewBitWriter()
	w.WriteU16(channel)
	return w.Bytes()
}

// DecodeMessageHeader unpacks a header written by EncodeMessageHeader.
func DecodeMessageHeader(b []byte) (uint16, error) {
	r := NewBitReader(b)
	return r.ReadU16()
}

// EncodeFragment packs a fragment.Fragment's header and payload into
// the bytes an IndexedMessage of Kind MessageFragment carries as Body.
func EncodeFragment(f fragment.Fragment) []byte {
	w := NewBitWriter()
	w.WriteU32(f.FragmentID)
	w.WriteU32(f.Index)
	w.WriteU32(f.Total)
	w.WriteBit(f.IsFirst)
	if f.IsFirst {
		w.WriteU16(f.MsgIndex)
		w.WriteU32(uint32(len(f.Header)))
		w.WriteBytes(f.Header)
	}
	w.WriteU32(uint32(len(f.Payload)))
	w.WriteBytes(f.Payload)
	return w.Bytes()
}

// DecodeFragment unpacks a fragment.Fragment written by EncodeFragment.
func DecodeFragment(b []byte) (fragment.Fragment, error) {
	r := NewBitReader(b)
	f := fragment.Fragment{}
	var err error
	if f.FragmentID, err = r.ReadU32(); err != nil {
		return fragment.Fragment{}, err
	}
	if f.Index, err = r.ReadU32(); err != nil {
		return fragment.Fragment{}, err
	}
	if f.Total, err = r.ReadU32(); err != nil {
		return fragment.Fragment{}, err
	}
	isFirst, err := r.ReadBit()
	if err != nil {
		return fragment.Fragment{}, err
	}
	f.IsFirst = isFirst
	if f.IsFirst {
		if f.MsgIndex, err = r.ReadU16(); err != nil {
			return fragment.Fragment{}, err
		}
		hdrLen, err := r.ReadU32()
		if err != nil {
			return fragment.Fragment{}, err
		}
		if f.Header, err = r.ReadBytes(int(hdrLen)); err != nil {
			return fragment.Fragment{}, err
		}
	}
	bodyLen, err := r.ReadU32()
	if err != nil {
		return fragment.Fragment{}, err
	}
	if f.Payload, err = r.ReadBytes(int(bodyLen)); err != nil {
		return fragment.Fragment{}, err
	}
	return f, nil
}
