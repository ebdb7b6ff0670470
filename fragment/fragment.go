// Package fragment implements C4: splitting an oversize message payload
// into indexed fragments at the sender and reassembling them at the
// receiver, tolerant of arbitrary delivery order and duplicates. Each
// fragment is expected to travel as its own reliable message, so this
// package only concerns itself with the fragment header and payload
// slicing, not sequencing.
package fragment

import (
	"math"

	"replicon/pkg/synerr"
)

// Fragment is one slice of an oversize message plus enough metadata to
// reassemble it. Index 0 additionally carries the logical message header
// bytes and the MessageIndex the first fragment was sent under.
type Fragment struct {
	FragmentID uint32
	Index      uint32
	Total      uint32
	IsFirst    bool
	Header     []byte // only meaningful when IsFirst
	MsgIndex   uint16 // only meaningful when IsFirst: MessageIndex of fragment 0
	Payload    []byte
}

// Split divides payload into ceil(len(payload)/maxChunk) fragments of at
// most maxChunk bytes each, tagged with fragmentID, prefixing the first with header and the
// MessageIndex it is sent under. It returns synerr.ErrFragmentLimitExceeded
// if the fragment count would exceed the 32-bit fragment index space
// rather than silently wrapping.
func Split(fragmentID uint32, header []byte, firstMsgIndex uint16, payload []byte, maxChunk int) ([]Fragment, error) {
	if maxChunk <= 0 {
		maxChunk = 1
	}
	total := (len(payload) + maxChunk - 1) / maxChunk
	if total == 0 {
		total = 1
	}
	if uint64(total) > math.MaxUint32 {
		return nil, synerr.ErrFragmentLimitExceeded
	}
	out := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxChunk
		end := start + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		f := Fragment{
			FragmentID: fragmentID,
			Index:      uint32(i),
			Total:      uint32(total),
			Payload:    append([]byte(nil), payload[start:end]...),
		}
		if i == 0 {
			f.IsFirst = true
			f.Header = append([]byte(nil), header...)
			f.MsgIndex = firstMsgIndex
		}
		out = append(out, f)
	}
	return out, nil
}

type pending struct {
	total     uint32
	slots     [][]byte
	filled    uint32
	haveFirst bool
	header    []byte
	msgIndex  uint16
}

// Reassembler tracks in-flight fragment groups keyed by FragmentID. Its
// per-fragment-id allocation is released as soon as a group completes or
// is explicitly discarded, bounding per-peer reassembly memory.
type Reassembler struct {
	pendings map[uint32]*pending
}

// NewReassembler returns an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pendings: make(map[uint32]*pending)}
}

// Completed is a fully reassembled message: the concatenated payload
// bytes plus the header and the MessageIndex of its first fragment.
type Completed struct {
	Header   []byte
	MsgIndex uint16
	Bytes    []byte
}

// Add stores fragment f. Once every slot for f.FragmentID is filled, it
// returns the reassembled message and removes the group's bookkeeping.
func (r *Reassembler) Add(f Fragment) (Completed, bool, error) {
	p, ok := r.pendings[f.FragmentID]
	if !ok {
		p = &pending{total: f.Total, slots: make([][]byte, f.Total)}
		r.pendings[f.FragmentID] = p
	}
	if f.IsFirst {
		if p.haveFirst {
			return Completed{}, false, synerr.ErrDuplicateFirstFragment
		}
		p.haveFirst = true
		p.header = f.Header
		p.msgIndex = f.MsgIndex
	}
	if int(f.Index) >= len(p.slots) {
		return Completed{}, false, nil // malformed/duplicate-total fragment, ignore
	}
	if p.slots[f.Index] == nil {
		p.slots[f.Index] = f.Payload
		p.filled++
	}
	if p.filled < p.total {
		return Completed{}, false, nil
	}
	if !p.haveFirst {
		delete(r.pendings, f.FragmentID)
		return Completed{}, false, synerr.ErrFirstFragmentMetaMissing
	}
	var out []byte
	for _, s := range p.slots {
		out = append(out, s...)
	}
	delete(r.pendings, f.FragmentID)
	return Completed{Header: p.header, MsgIndex: p.msgIndex, Bytes: out}, true, nil
}

// Discard releases the in-flight state for fragmentID without completing
// it, used to enforce a per-peer reassembly memory budget against a
// hostile peer that floods fragment ids (see DESIGN.md's Open Question
// resolution).
func (r *Reassembler) Discard(fragmentID uint32) {
	delete(r.pendings, fragmentID)
}

// InFlightGroups returns the number of fragment ids currently being
// reassembled, for memory-budget enforcement by the caller.
func (r *Reassembler) InFlightGroups() int { return len(r.pendings) }
