package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAccessDenied is returned for mutations of rows the caller does not own.
	// Missing rows produce the same error so ownership cannot be probed.
	ErrAccessDenied = errors.New("access denied")

	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")

	ErrScopeClosed         = errors.New("scoped repository is closed")
	ErrUnknownCycleKind    = errors.New("unknown cycle kind")
	ErrNoHandler           = errors.New("no handler registered for operation type")
	ErrInvalidTransition   = errors.New("invalid operation status transition")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrIntegrationInactive = errors.New("integration not connected")
	ErrLockNotAcquired     = errors.New("lock held by another worker")
	ErrRateLimited         = errors.New("too many requests")
)

var (
	ErrFuturePeriod       = &ValidationError{Field: "period", Msg: "future period"}
	ErrInvalidPeriod      = &ValidationError{Field: "period", Msg: "invalid period number"}
	ErrNonCanonicalPeriod = &ValidationError{Field: "period", Msg: "dates must span monday to friday of the period"}
	ErrEmptyContent       = &ValidationError{Field: "content", Msg: "content must not be empty"}
	ErrEmptyCycleName     = &ValidationError{Field: "cycle_name", Msg: "cycle name must not be empty"}
	ErrInvalidTimezone    = &ValidationError{Field: "timezone", Msg: "unknown timezone"}
)

// ValidationError is a caller mistake with a stable, user-facing message.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps driver failures. The underlying message is kept verbatim.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError returns nil for a nil err so it can wrap return values directly.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// HandlerError is the failure of an operation handler. Its message ends up
// verbatim in the operation's error_message.
type HandlerError struct {
	Msg string
	Err error
}

func (e *HandlerError) Error() string { return e.Msg }

func (e *HandlerError) Unwrap() error { return e.Err }

// NewHandlerError formats a message and optionally keeps the cause for errors.Is.
func NewHandlerError(cause error, format string, args ...any) *HandlerError {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &HandlerError{Msg: msg, Err: cause}
}
