package netstack

import (
	"errors"
	"fmt"
)

// Error is a structured stack error carrying the operation, queue (if
// applicable), and high-level category, in the style of the teacher's own
// *Error type.
type Error struct {
	Op    string    // operation that failed, e.g. "join_multicast_group"
	Queue int       // queue id (-1 if not applicable)
	Code  ErrorCode // high-level error category
	Msg   string    // human-readable message
	Inner error     // wrapped error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Queue >= 0 {
		return fmt.Sprintf("netstack: %s (op=%s queue=%d)", msg, e.Op, e.Queue)
	}
	if e.Op != "" {
		return fmt.Sprintf("netstack: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("netstack: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode names a high-level error category, mirrored from the taxonomy
// in spec.md §7.
type ErrorCode string

const (
	// ErrCodeUnroutable: dispatch_ip found no route for the destination.
	ErrCodeUnroutable ErrorCode = "unroutable destination"
	// ErrCodeExhausted: a TxToken was not available for a user-visible op
	// (multicast join/leave); internal egress instead retries next tick.
	ErrCodeExhausted ErrorCode = "transmit exhausted"
	// ErrCodeGroupTableFull: multicast table insertion at capacity.
	ErrCodeGroupTableFull ErrorCode = "multicast group table full"
	// ErrCodeIpv6NotSupported: join/leave requested for an IPv6 group.
	ErrCodeIpv6NotSupported ErrorCode = "ipv6 multicast not supported"
	// ErrCodeSocketSetFull: add() on a non-growable SocketSet with no
	// empty slot. A caller bug per spec.md §4.C — the growable SocketSet
	// this module always constructs never returns this.
	ErrCodeSocketSetFull ErrorCode = "socket set full"
	// ErrCodeMalformed marks a decode failure. No function in this module
	// returns it: malformed frames are dropped silently (never propagated,
	// per spec.md §7).
	ErrCodeMalformed ErrorCode = "malformed frame"
)

// NewError creates a structured error with no queue context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Queue: -1, Code: code, Msg: msg}
}

// NewQueueError creates a structured error scoped to a specific queue.
func NewQueueError(op string, queue int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Queue: queue, Code: code, Msg: msg}
}

// WrapError wraps inner with op context, preserving its code if inner is
// already a structured *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Queue: e.Queue, Code: e.Code, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, Queue: -1, Code: ErrCodeUnroutable, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
