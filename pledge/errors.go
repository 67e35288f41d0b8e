// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// Kind enumerates the ways a pledge can fail verification, matching the
// taxonomy in the project's error-handling design.
type Kind int

const (
	// BadFormat covers any fast sanity-check failure: unparseable
	// transactions, a main/dependency linkage mismatch, or an
	// append-more-inputs sighash violation.
	BadFormat Kind = iota

	// UnknownUTXO means the outpoint is absent or spent per quorum. Not
	// an error condition by itself; callers treat it as revocation.
	UnknownUTXO

	// ScriptMismatch means the UTXO oracle's script or value for an
	// outpoint disagrees with what the pledge claims.
	ScriptMismatch

	// DuplicatedOutPoint means two accepted pledges (or two inputs of
	// the same pledge) spend the same outpoint.
	DuplicatedOutPoint

	// TooManyDependencies means a pledge exceeds the dependency-count
	// limit for the current mode.
	TooManyDependencies

	// NoCapablePeers means fewer than the configured minimum number of
	// peers advertised UTXO-query capability.
	NoCapablePeers

	// TransportError covers HTTP/TLS failures talking to a project
	// server.
	TransportError

	// IOError covers a disk failure persisting a submitted pledge.
	IOError
)

func (k Kind) String() string {
	switch k {
	case BadFormat:
		return "BadFormat"
	case UnknownUTXO:
		return "UnknownUTXO"
	case ScriptMismatch:
		return "ScriptMismatch"
	case DuplicatedOutPoint:
		return "DuplicatedOutPoint"
	case TooManyDependencies:
		return "TooManyDependencies"
	case NoCapablePeers:
		return "NoCapablePeers"
	case TransportError:
		return "TransportError"
	case IOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// VerifyError is the error type returned by the verification pipeline. It
// carries enough context (the offending outpoint, when relevant) for a
// CheckStatus to describe the failure without a caller needing to parse a
// message string.
type VerifyError struct {
	Kind     Kind
	Outpoint *wire.OutPoint // nil unless Kind implies one
	Err      error          // wrapped underlying cause, may be nil
}

func (e *VerifyError) Error() string {
	if e.Outpoint != nil {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Outpoint, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Outpoint)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, pledge.KindError(k)) style checks against a bare
// Kind value wrapped as an error by KindError.
func (e *VerifyError) Is(target error) bool {
	ke, ok := target.(kindError)
	return ok && e.Kind == ke.kind
}

type kindError struct{ kind Kind }

func (k kindError) Error() string { return k.kind.String() }

// KindError returns a sentinel error value suitable for errors.Is checks
// against a VerifyError's Kind, e.g. errors.Is(err, pledge.KindError(pledge.UnknownUTXO)).
func KindError(k Kind) error { return kindError{kind: k} }

// RootCause walks err's Unwrap chain to the deepest non-nil cause. This
// mirrors Throwables.getRootCause from the original implementation: a
// CheckStatus should describe the actual failure, not "context deadline
// exceeded" wrapping everything above it.
func RootCause(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
