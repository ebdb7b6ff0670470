// Package synerr implements the error taxonomy of the replication
// protocol: wire errors, protocol errors, configuration errors, resource
// errors and fatal internal errors, each with a strict form (returned)
// and a permissive form (panics with the same message) per spec §7.
package synerr

import "fmt"

// Kind classifies a replication error into one of the five taxonomy
// buckets; the recovery policy for each kind is fixed by the caller that
// observes it, not by this package.
type Kind uint8

const (
	KindWire Kind = iota
	KindProtocol
	KindConfiguration
	KindResource
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindWire:
		return "wire"
	case KindProtocol:
		return "protocol"
	case KindConfiguration:
		return "configuration"
	case KindResource:
		return "resource"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the strict-API error value: a kind plus a message and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synerr[%s]: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("synerr[%s]: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Must panics with err's message if err is non-nil; it is the permissive
// convenience form of any strict function in this module, for host-side
// misuse only, never on a network boundary.
func Must(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 is Must for a single-value strict call: panics on error, else
// returns v.
func Must1[T any](v T, err error) T {
	Must(err)
	return v
}

// Common named errors reused across packages.
var (
	ErrDuplicateId               = New(KindWire, "duplicate id")
	ErrEntityNotFound             = New(KindFatal, "entity not found")
	ErrIllegalTransition          = New(KindProtocol, "illegal state transition")
	ErrUnregisteredComponent      = New(KindConfiguration, "unregistered component")
	ErrUnregisteredChannel        = New(KindConfiguration, "unregistered channel")
	ErrOversizeUnreliableMessage  = New(KindConfiguration, "oversize message on unreliable channel")
	ErrRwLockReentrant            = New(KindResource, "reentrant lock acquisition")
	ErrAuthLockPoisoned           = New(KindResource, "auth lock poisoned")
	ErrDuplicateFirstFragment     = New(KindWire, "duplicate first fragment")
	ErrFirstFragmentMetaMissing   = New(KindWire, "first fragment metadata missing")
	ErrFragmentedMessageReadFail  = New(KindWire, "fragmented message read failed")
	ErrFragmentLimitExceeded      = New(KindWire, "fragment limit exceeded")
	ErrInvalidPacketType          = New(KindWire, "invalid packet type index")
	ErrMigrateResponseUnknownOld  = New(KindProtocol, "migrate response references unknown old remote entity")
	ErrChannelQueueFull           = New(KindResource, "channel queue full")
	ErrWireTruncated              = New(KindWire, "buffer truncated")
	ErrMessageExceedsStreamLimit  = New(KindConfiguration, "message exceeds reliable-channel stream threshold")
)
