// Package taoerr classifies errors raised anywhere in the taograph storage
// engine into the small set of kinds the decorator chain and the
// consistency manager need to branch on, without resorting to string
// matching or deep type assertions at every call site.
package taoerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from the design's error-handling
// section. Decorators and the consistency manager switch on Kind rather
// than on concrete error types so that new error sources (a different SQL
// driver, a different cache backend) don't require touching every caller.
type Kind int

const (
	// Unknown is the zero value; errors that were never classified.
	Unknown Kind = iota
	// Validation indicates a schema or argument violation. Never retried.
	Validation
	// NotFound indicates the target ID/association is absent.
	NotFound
	// Conflict indicates a unique-key violation. Treated as
	// success-equivalent by idempotent operations (association insert),
	// surfaced otherwise.
	Conflict
	// TransientIO indicates a database connection/timeout. Retried by the
	// WAL retry worker for logged writes; surfaced immediately for reads.
	TransientIO
	// Serialization indicates a payload codec failure. Never retried.
	Serialization
	// Timeout indicates a cross-shard wait exceeded its bound. Treated as
	// Failed by the consistency manager's monitor and queued for
	// compensation.
	Timeout
	// ServiceUnavailable indicates the circuit breaker is open. No inner
	// work is attempted.
	ServiceUnavailable
	// Fatal indicates clock regression or a corrupt WAL index. The
	// process must not continue.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case TransientIO:
		return "transient_io"
	case Serialization:
		return "serialization"
	case Timeout:
		return "timeout"
	case ServiceUnavailable:
		return "service_unavailable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and an operation label, so
// callers can log a stable operation name regardless of which layer of the
// decorator chain produced the error.
type Error struct {
	Cause error
	Op    string
	Kind  Kind
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New classifies cause under kind, attaching op for diagnostics.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}

// Is reports whether err (or any error it wraps) was classified as kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or Unknown if err was never classified.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Unknown
}

// Sentinel errors for the common not-found/conflict cases so packages can
// compare with errors.Is without constructing a full *Error.
var (
	ErrObjectNotFound      = errors.New("object not found")
	ErrAssociationNotFound = errors.New("association not found")
	ErrObjectExists        = errors.New("object already exists")
	ErrAssociationExists   = errors.New("association already exists")
	ErrClockRegression     = errors.New("id generator observed clock regression")
	ErrCorruptWALIndex     = errors.New("wal index is corrupt")
)
