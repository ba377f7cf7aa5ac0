// Package apperr defines the error kinds every caller-facing operation returns.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable, caller-visible class of a failure.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindInvalid            Kind = "INVALID"
	KindInternal           Kind = "INTERNAL"
)

// Reason refines a Kind. Empty for kinds that need no refinement.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonSessionEnded  Reason = "SESSION_ENDED"
	ReasonAlreadyJoined Reason = "ALREADY_JOINED"
	ReasonContention    Reason = "CONTENTION"
	ReasonSessionFull   Reason = "SESSION_FULL"
	ReasonTimeout       Reason = "TIMEOUT"
)

// Error carries a Kind, an optional Reason, a human-readable message and the
// underlying cause.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error on Kind, and on Reason when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrSessionEnded       = &Error{Kind: KindConflict, Reason: ReasonSessionEnded}
	ErrAlreadyJoined      = &Error{Kind: KindConflict, Reason: ReasonAlreadyJoined}
	ErrContention         = &Error{Kind: KindConflict, Reason: ReasonContention}
	ErrSessionFull        = &Error{Kind: KindConflict, Reason: ReasonSessionFull}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrInvalid            = &Error{Kind: KindInvalid}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

func Conflict(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func SessionEnded(sessionID string) *Error {
	return Conflict(ReasonSessionEnded, "session %s has ended", sessionID)
}

// Unavailable wraps an infrastructure failure. Deadline errors are tagged with
// ReasonTimeout.
func Unavailable(err error, format string, args ...any) *Error {
	reason := ReasonNone
	if isTimeout(err) {
		reason = ReasonTimeout
	}
	return &Error{
		Kind:    KindServiceUnavailable,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason of err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// MessageOf returns the caller-facing message without the wrapped cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
