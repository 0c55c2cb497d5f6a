// Package taerr defines the typed error taxonomy of spec section 7: six
// kinds, one concrete type, errors.Is/errors.As friendly via Unwrap.
package taerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	// InvalidArgument: malformed priority, bad share length/duplicate x,
	// wrong key/nonce length, secret out of field.
	InvalidArgument Kind = "invalid_argument"
	// NotFound: patient/history absent when required.
	NotFound Kind = "not_found"
	// Conflict: create attempted for an existing patient.
	Conflict Kind = "conflict"
	// Integrity: blob digest mismatch; AEAD authentication failure.
	Integrity Kind = "integrity"
	// External: ledger/object-store/LLM I/O failure or timeout.
	External Kind = "external"
	// Internal: unexpected (bug) conditions.
	Internal Kind = "internal"
)

// Error is the concrete taerr type. Op names the failing operation
// (e.g. "tacore.UploadNewRecord"); Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// KindOf returns the kind carried by err, or Internal if err isn't a
// *Error — callers at a boundary (e.g. HTTP) that must always map to
// something fall back to the conservative, least-specific kind.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Internal
}
