package vento

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so that callers can branch on the category of an
// error without parsing its message. Every error returned by the backup core
// carries exactly one Kind.
type Kind int

const (
	// KindUnknown is an unclassified internal failure.
	KindUnknown Kind = iota

	// KindValidation is bad caller input (empty name, keep count below one).
	// Validation messages contain no secrets and are safe to show verbatim.
	KindValidation

	// KindKeyDerivation is a failure to derive the symmetric key, either
	// because the underlying primitive is unavailable or inputs are empty.
	KindKeyDerivation

	// KindCrypto is an encryption or decryption failure that is not an
	// integrity verdict (for example, cipher construction failed).
	KindCrypto

	// KindIntegrity is a checksum, authentication tag, or structural
	// mismatch. Tampered artifacts and artifacts encrypted under a
	// different secret/salt pair both report this kind, indistinguishably.
	KindIntegrity

	// KindStorage is a filesystem or backend I/O failure.
	KindStorage

	// KindNotFound is a missing artifact, sidecar, or store file.
	KindNotFound

	// KindBusy is lock contention: another pipeline mutation was in flight
	// and did not release the lock within the configured timeout.
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindKeyDerivation:
		return "key_derivation"
	case KindCrypto:
		return "crypto"
	case KindIntegrity:
		return "integrity"
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error is the tagged failure value used across the backup core. Op names the
// operation that failed ("backup.create", "keys.derive"), Kind carries the
// taxonomy category, and Err holds the wrapped cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two taxonomy errors match when their kinds match, so callers can
// use errors.Is(err, &Error{Kind: KindIntegrity}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// E builds a taxonomy error wrapping an underlying cause.
func E(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Errorf builds a taxonomy error from a format string.
func Errorf(op string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error chain, returning KindUnknown when the
// chain carries no taxonomy error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
