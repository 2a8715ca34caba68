// Package zverrors defines the error-kind taxonomy shared by every
// zerovault package. Callers distinguish kinds with errors.As, the way
// the rest of the codebase wraps errors with fmt.Errorf("%w", ...).
package zverrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way §7 of the design requires: callers
// branch on kind, never on message text.
type Kind int

const (
	// Configuration covers bad storage URLs and missing credentials.
	Configuration Kind = iota
	// Engine covers failures surfaced by the embedded SQL engine.
	Engine
	// Serialization covers changelog entries that cannot be encoded
	// or decoded (corrupt object, unknown type tag).
	Serialization
	// Integrity covers a manifest referencing a missing batch, or a
	// field row referencing a missing change id.
	Integrity
	// Transport covers object-store I/O failures (network,
	// permission, transient).
	Transport
	// Cancelled covers a cancel signal observed at a safe point.
	Cancelled
	// Cryptographic covers AEAD authentication failure.
	Cryptographic
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Engine:
		return "engine"
	case Serialization:
		return "serialization"
	case Integrity:
		return "integrity"
	case Transport:
		return "transport"
	case Cancelled:
		return "cancelled"
	case Cryptographic:
		return "cryptographic"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can branch on
// failure class without parsing messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind and op. Returns nil if err is nil, so it is
// safe to call as the tail of an error-returning function.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var ze *Error
	if errors.As(err, &ze) {
		return ze.Kind == kind
	}
	return false
}
