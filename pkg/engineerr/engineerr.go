// Package engineerr models the engine's closed error-kind taxonomy as a
// sentinel-kind type wrapped with fmt.Errorf, so that pkg/httpapi can map
// any engine error to its HTTP status by a single errors.As/errors.Is check
// instead of string-matching messages.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories the engine surfaces.
type Kind int

const (
	// KindShape covers hex length mismatches, non-hex characters,
	// structural field absence, or a denormalized field supplied by a
	// caller.
	KindShape Kind = iota
	// KindIdentifier names a supplied hash/txid/merkle_root that does not
	// equal its recomputed value. The engine does not return it:
	// CreateBlock and AdmitToMempool report every entity-construction
	// failure, identifier mismatches included, as KindShape.
	KindIdentifier
	// KindConsensus covers wrong previous_hash, bits not equal to the
	// configured floor, wrong coinbase subsidy, or a coinbase submitted to
	// the mempool. A block hash over its target is rejected during block
	// construction and so is reported as KindShape, not KindConsensus.
	KindConsensus
	// KindUTXO covers a missing referenced UTXO, an already-spent UTXO, or
	// mempool value imbalance.
	KindUTXO
	// KindScript covers any Script VM failure path.
	KindScript
	// KindNotFound covers point reads against absent partition/row pairs.
	KindNotFound
	// KindInternal covers store I/O failures and unanticipated errors.
	KindInternal
)

// String names the kind for logging.
func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindIdentifier:
		return "identifier"
	case KindConsensus:
		return "consensus"
	case KindUTXO:
		return "utxo"
	case KindScript:
		return "script"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with a human-readable message; pkg/httpapi maps Kind
// to both the JSON "code" field and the response's HTTP status.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a Kind-tagged error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a Kind-tagged error wrapping cause, or returns nil if
// cause is nil (errors.Wrap-style convenience for "if err != nil" call
// sites).
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a tagged *Error, else
// KindInternal: an untagged error reaching the HTTP boundary is itself a
// bug and surfaces as a 500.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
