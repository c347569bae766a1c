package diag

import (
	"errors"
	"fmt"
)

// Class identifies which contract a failed operation violated.
type Class int

const (
	// UndefinedBehavior means the guest program broke the contract of the
	// primitive it called.
	UndefinedBehavior Class = iota
	// Unsupported means the guest was within its rights but the emulator
	// cannot model the operation.
	Unsupported
)

// String returns the string representation of a Class.
func (c Class) String() string {
	switch c {
	case UndefinedBehavior:
		return "undefined behavior"
	case Unsupported:
		return "unsupported operation"
	default:
		return "unknown"
	}
}

// Error is a guest-visible diagnostic: either undefined behavior in the
// guest program or a documented limitation of the emulator. It unwinds to
// the guest's primitive call site and is reported there.
type Error struct {
	// Class separates "your program is broken" from "this tool cannot
	// model that".
	Class Class

	// Detail describes the violation with enough context (key, thread)
	// to diagnose it.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Class.String() + ": " + e.Detail
}

// UBf returns an undefined-behavior diagnostic with a formatted detail
// message.
func UBf(format string, args ...any) error {
	return &Error{Class: UndefinedBehavior, Detail: fmt.Sprintf(format, args...)}
}

// Unsupportedf returns an unsupported-operation diagnostic with a formatted
// detail message.
func Unsupportedf(format string, args ...any) error {
	return &Error{Class: Unsupported, Detail: fmt.Sprintf(format, args...)}
}

// IsUB reports whether err is an undefined-behavior diagnostic.
func IsUB(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Class == UndefinedBehavior
}

// IsUnsupported reports whether err is an unsupported-operation diagnostic.
func IsUnsupported(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Class == Unsupported
}

// InternalError is a fatal consistency violation inside the emulator's own
// driver logic. It indicates a defect in the caller of the TLS core, not in
// the guest program, and aborts the interpretation session.
type InternalError struct {
	Detail string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return "internal consistency violation: " + e.Detail
}

// Internalf panics with an *InternalError carrying the formatted detail.
func Internalf(format string, args ...any) {
	panic(&InternalError{Detail: fmt.Sprintf(format, args...)})
}

// Assertf panics with an *InternalError unless cond holds.
//
// Used for the drain-driver invariants (no double drain, thread fully
// terminated, destructor never paired with a null value).
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		Internalf(format, args...)
	}
}
