// Package schederr classifies errors raised anywhere in the scheduling
// engine or solver service into the kinds the spec's failure-handling rules
// branch on: bad input, solver infeasibility, transient I/O, and internal
// bugs. Callers use KindOf(err) to decide how to respond rather than
// inspecting error strings.
package schederr

import (
	"errors"
	"fmt"
)

// Kind is the coarse error classification used to decide response shape
// and retry behavior.
type Kind int

const (
	// KindInternal covers anything not otherwise classified: logged with
	// context and surfaced as a full-unassigned, status=error payload.
	KindInternal Kind = iota
	// KindInputValidation covers malformed requests: bad ISO timestamps,
	// negative durations, unknown location indices. Fail fast, no partial
	// work performed.
	KindInputValidation
	// KindInfeasibility covers a solver that ran to completion but could
	// not place every item. Not an exception: surfaced via status and
	// unassignedItemIds.
	KindInfeasibility
	// KindTransientIO covers travel-provider or persistence-layer
	// failures eligible for a small bounded retry.
	KindTransientIO
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindInfeasibility:
		return "infeasibility"
	case KindTransientIO:
		return "transient_io"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind and a short description.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds a classified error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Wrap classifies an existing error, preserving it for errors.Is/As/Unwrap.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// InputValidation is a convenience constructor for KindInputValidation.
func InputValidation(format string, args ...interface{}) error {
	return New(KindInputValidation, fmt.Sprintf(format, args...))
}

// Infeasible is a convenience constructor for KindInfeasibility.
func Infeasible(format string, args ...interface{}) error {
	return New(KindInfeasibility, fmt.Sprintf(format, args...))
}

// TransientIO wraps err as a retryable I/O failure.
func TransientIO(msg string, err error) error {
	return Wrap(KindTransientIO, msg, err)
}

// Internal wraps err as an unclassified internal failure.
func Internal(msg string, err error) error {
	return Wrap(KindInternal, msg, err)
}

// KindOf extracts the Kind from err, walking wrapped errors. Unclassified
// errors report KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
