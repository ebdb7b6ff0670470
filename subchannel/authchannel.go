package subchannel

import (
	"sync"

	"replicon/pkg/synerr"
	"replicon/seq"
)

// AuthState is one of the three states an entity's authority-delegation
// channel can occupy.
type AuthState uint8

const (
	Unpublished AuthState = iota
	Published
	Delegated
)

func (s AuthState) String() string {
	switch s {
	case Unpublished:
		return "Unpublished"
	case Published:
		return "Published"
	case Delegated:
		return "Delegated"
	default:
		return "unknown"
	}
}

// AuthChannel is the per-entity authority state machine: Unpublished ->
// Published -> Delegated, with the four authority sub-commands
// (RequestAuthority, ReleaseAuthority, EnableDelegationResponse,
// MigrateResponse) legal only while Delegated and never changing state.
//
// In strict mode (the host side, where commands originate from the
// local application and any ordering violation is a caller bug) Submit
// rejects an illegal command immediately. In buffered mode (the remote
// side, where commands arrive over the network and a legitimate
// reordering may still resolve itself) an illegal head command is
// parked until a later arrival makes it legal.
type AuthChannel struct {
	mu      sync.Mutex
	strict  bool
	state   AuthState
	buffer  *seq.OrderedIds[Command]
	nextSeq uint16
}

// NewAuthChannel returns a channel starting in initial, in strict or
// buffered mode.
func NewAuthChannel(initial AuthState, strict bool) *AuthChannel {
	return &AuthChannel{strict: strict, state: initial, buffer: seq.NewOrderedIds[Command]()}
}

// State returns the channel's current authority state.
func (c *AuthChannel) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit feeds cmd into the channel. It returns the commands now legal
// to apply, in order (possibly empty in buffered mode, possibly more
// than one if cmd's arrival unblocked commands already parked).
func (c *AuthChannel) Submit(cmd Command) ([]Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.strict {
		next, ok := c.tryApply(cmd.Kind)
		if !ok {
			return nil, synerr.ErrIllegalTransition
		}
		c.state = next
		return []Command{cmd}, nil
	}

	if next, ok := c.tryApply(cmd.Kind); ok {
		c.state = next
		return append([]Command{cmd}, c.drainLocked()...), nil
	}
	id := c.nextSeq
	c.nextSeq++
	c.buffer.PushBack(id, cmd)
	return c.drainLocked(), nil
}

func (c *AuthChannel) drainLocked() []Command {
	var out []Command
	for {
		_, cmd, ok := c.buffer.Front()
		if !ok {
			return out
		}
		next, applied := c.tryApply(cmd.Kind)
		if !applied {
			return out
		}
		c.buffer.PopFront()
		c.state = next
		out = append(out, cmd)
	}
}

// tryApply reports whether k is legal for the current state and, if
// so, the state it transitions to (authority sub-commands return the
// unchanged state).
func (c *AuthChannel) tryApply(k CommandKind) (AuthState, bool) {
	if IsAuthoritySubCommand(k) {
		if c.state == Delegated {
			return c.state, true
		}
		return c.state, false
	}
	switch c.state {
	case Unpublished:
		if k == CmdPublish {
			return Published, true
		}
	case Published:
		if k == CmdUnpublish {
			return Unpublished, true
		}
		if k == CmdEnableDelegation {
			return Delegated, true
		}
	case Delegated:
		if k == CmdDisableDelegation {
			return Published, true
		}
		if k == CmdUpdateAuthority {
			return Delegated, true
		}
	}
	return c.state, false
}

// Pending returns the number of commands parked awaiting legality, only
// meaningful in buffered mode.
func (c *AuthChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Len()
}
