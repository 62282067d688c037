package mama

import (
	"errors"

	"github.com/mama-core/mama/internal/mamaerr"
)

// Error is the re-exported error shape every Engine method returns on
// failure: a Kind an external adapter can branch on, a human-readable
// Message, and an optional repair Suggestion (spec §7).
type Error = mamaerr.Error

// Kind classifies an Error. See the Err* sentinels below for the closed
// set of values an Engine method can produce.
type Kind = mamaerr.Kind

// Sentinels for errors.Is(err, mama.ErrNotFound) and friends. Most errors
// an Engine method returns wrap one of these; some do not (file-system
// errors while writing or reading a link backup, errors from Close), and
// ExitCodeFor maps those to ExitStorageError.
var (
	ErrValidation        = mamaerr.ErrValidation
	ErrNotFound          = mamaerr.ErrNotFound
	ErrConflict          = mamaerr.ErrConflict
	ErrInvariantViolated = mamaerr.ErrInvariantViolated
	ErrNoRecentBackup    = mamaerr.ErrNoRecentBackup
	ErrChecksumMismatch  = mamaerr.ErrChecksumMismatch
	ErrEmbedUnavailable  = mamaerr.ErrEmbedUnavailable
	ErrTimeout           = mamaerr.ErrTimeout
	ErrCancelled         = mamaerr.ErrCancelled
	ErrStorageError      = mamaerr.ErrStorageError
)

// ExitCode is the process exit status an external CLI wrapper should use
// for an error of the given Kind (spec §6). This package never calls
// os.Exit; it only specifies the mapping (the cmd/mama demo binary is
// the one caller that exits with it).
type ExitCode int

const (
	ExitSuccess            ExitCode = 0
	ExitValidationFailure  ExitCode = 1
	ExitMissingEnvironment ExitCode = 2
	ExitStorageError       ExitCode = 3
)

// ExitCodeFor maps an error returned by an Engine method to the exit
// code a CLI wrapper should use. A nil error maps to ExitSuccess; an
// error that doesn't match any known Kind maps to ExitStorageError, the
// catch-all for "something unexpected happened."
func ExitCodeFor(err error) ExitCode {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvariantViolated):
		return ExitValidationFailure
	default:
		return ExitStorageError
	}
}
