package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that map failures to a transport
// status or decide whether a retry makes sense.
type Kind int

const (
	// KindInternal covers unexpected failures and data-integrity
	// violations (unknown role, broken owner chain). These are never the
	// caller's fault.
	KindInternal Kind = iota

	// KindNotFound means the referenced entity does not exist.
	KindNotFound

	// KindInvalidArgument means the input was malformed or referenced an
	// unresolvable entity.
	KindInvalidArgument

	// KindConflict means the request violates a business rule given the
	// current state (duplicate name, non-pending request, ...).
	KindConflict

	// KindForbidden means a permission check failed. The checker itself
	// returns a bool; this kind is emitted by its callers.
	KindForbidden

	// KindCycle means a membership cycle was detected while resolving
	// effective roles. The persisted graph is invalid.
	KindCycle
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidArgument:
		return "invalid argument"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindCycle:
		return "membership cycle"
	default:
		return "internal"
	}
}

// Error is a classified error. Wrapping is preserved so callers can still
// reach the underlying cause with errors.Is/As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it reachable via Unwrap.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// InvalidArgument creates a KindInvalidArgument error.
func InvalidArgument(format string, args ...interface{}) *Error {
	return New(KindInvalidArgument, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// Forbidden creates a KindForbidden error.
func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

// Internal creates a KindInternal error.
func Internal(format string, args ...interface{}) *Error {
	return New(KindInternal, format, args...)
}

// Cycle creates a KindCycle error.
func Cycle(format string, args ...interface{}) *Error {
	return New(KindCycle, format, args...)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is classified as KindNotFound.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsInvalidArgument reports whether err is classified as KindInvalidArgument.
func IsInvalidArgument(err error) bool { return is(err, KindInvalidArgument) }

// IsConflict reports whether err is classified as KindConflict.
func IsConflict(err error) bool { return is(err, KindConflict) }

// IsForbidden reports whether err is classified as KindForbidden.
func IsForbidden(err error) bool { return is(err, KindForbidden) }

// IsCycle reports whether err is classified as KindCycle.
func IsCycle(err error) bool { return is(err, KindCycle) }

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
