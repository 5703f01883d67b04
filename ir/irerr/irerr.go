// Package irerr implements the error taxonomy used throughout the IR (see
// spec §7): every failure is tagged with a Kind rather than given its own
// Go type, so callers can switch on Kind instead of doing type assertions
// per error.
package irerr

import (
	"fmt"

	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// Kind classifies why an IR operation failed.
type Kind int

const (
	// InvalidProgram means the IR would violate an SSA or typing
	// invariant. Fatal: the builder session must be aborted.
	InvalidProgram Kind = iota

	// NotSupported means a requested operation is unavailable for the
	// current target. Local recovery is possible: the caller may retry
	// with different parameters.
	NotSupported

	// InvalidOperation means the API was misused (builder already open,
	// operating on a released builder, mismatched generation). Fatal.
	InvalidOperation

	// ArgumentOutOfRange means the input was malformed (nil locations,
	// negative line numbers, an empty reachable-root set).
	ArgumentOutOfRange

	// VerificationFailed means the post-build verifier found structural
	// violations. Diagnostics are collected into a Result, not just the
	// first failure.
	VerificationFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidProgram:
		return "invalid program"
	case NotSupported:
		return "not supported"
	case InvalidOperation:
		return "invalid operation"
	case ArgumentOutOfRange:
		return "argument out of range"
	case VerificationFailed:
		return "verification failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the concrete error type for every IR failure. Diagnostics always
// route through loc.FormatErrorMessage so an error produced inside an
// inlined context prints the whole compilation stack.
type Error struct {
	Kind    Kind
	Loc     loc.Location
	Message string
}

func (e *Error) Error() string {
	l := e.Loc
	if l == nil {
		l = loc.Unknown
	}
	return loc.FormatErrorMessage(l, fmt.Sprintf("%s: %s", e.Kind, e.Message))
}

// New constructs an *Error of the given kind at location l.
func New(kind Kind, l loc.Location, format string, args ...any) *Error {
	if l == nil {
		l = loc.Unknown
	}
	return &Error{Kind: kind, Loc: l, Message: fmt.Sprintf(format, args...)}
}

// Result collects every diagnostic produced by a single verification pass
// (spec §7: VerificationFailed "collected into a result bag").
type Result struct {
	Errors []*Error
}

// Add appends a diagnostic to the result.
func (r *Result) Add(err *Error) {
	r.Errors = append(r.Errors, err)
}

// OK reports whether verification found no violations.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

func (r *Result) Error() string {
	if len(r.Errors) == 0 {
		return "no errors"
	}
	if len(r.Errors) == 1 {
		return r.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d verification errors:", len(r.Errors))
	for _, e := range r.Errors {
		msg += "\n\t" + e.Error()
	}
	return msg
}
