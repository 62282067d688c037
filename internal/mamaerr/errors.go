// Package mamaerr defines the error-kind taxonomy shared by every layer of
// the memory core. It lives beneath internal/model and internal/storage so
// they can return typed errors without importing the root mama package,
// which re-exports these same values as mama.ErrValidation and friends.
package mamaerr

import "errors"

// Kind classifies an error the way an external adapter needs to branch on
// it (distinct from Go's type system — see spec §7, "error kinds, not type
// names").
type Kind string

const (
	KindValidation        Kind = "Validation"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindInvariantViolated Kind = "InvariantViolated"
	KindNoRecentBackup    Kind = "NoRecentBackup"
	KindChecksumMismatch  Kind = "ChecksumMismatch"
	KindEmbedUnavailable  Kind = "EmbedUnavailable"
	KindTimeout           Kind = "Timeout"
	KindCancelled         Kind = "Cancelled"
	KindStorageError      Kind = "StorageError"
)

// Error carries a Kind plus a human-readable message and optional repair
// suggestion, per spec §7 ("every error carries a short reason and, where
// applicable, a repair suggestion").
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return e.Message + " (" + e.Suggestion + ")"
	}
	return e.Message
}

// Is reports whether target is the sentinel for e's Kind, so callers can
// write errors.Is(err, mamaerr.ErrValidation) against a wrapped *Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*sentinelError)
	return ok && sentinel.kind == e.Kind
}

// sentinelError is the comparable value returned by errors.New-style
// package vars below; *Error.Is matches against it by Kind.
type sentinelError struct {
	kind Kind
}

func (s *sentinelError) Error() string { return string(s.kind) }

func newSentinel(k Kind) error { return &sentinelError{kind: k} }

// Sentinels, one per Kind, for errors.Is comparisons.
var (
	ErrValidation        = newSentinel(KindValidation)
	ErrNotFound          = newSentinel(KindNotFound)
	ErrConflict          = newSentinel(KindConflict)
	ErrInvariantViolated = newSentinel(KindInvariantViolated)
	ErrNoRecentBackup    = newSentinel(KindNoRecentBackup)
	ErrChecksumMismatch  = newSentinel(KindChecksumMismatch)
	ErrEmbedUnavailable  = newSentinel(KindEmbedUnavailable)
	ErrTimeout           = newSentinel(KindTimeout)
	ErrCancelled         = newSentinel(KindCancelled)
	ErrStorageError      = newSentinel(KindStorageError)
)

// New builds a *Error of the given kind with message and an optional
// suggestion (pass "" for none).
func New(kind Kind, message, suggestion string) *Error {
	return &Error{Kind: kind, Message: message, Suggestion: suggestion}
}

// Wrap builds a *Error of the given kind that also satisfies errors.Is/As
// against err via errors.Join semantics, preserving the original cause.
func Wrap(kind Kind, err error, suggestion string) error {
	return errors.Join(&Error{Kind: kind, Message: err.Error(), Suggestion: suggestion}, err)
}
