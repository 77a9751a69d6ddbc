package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	ErrJobNotFound      = errors.New("qrjobs: batch job not found")
	ErrTemplateNotFound = errors.New("qrjobs: export template not found")
	ErrBuiltinTemplate  = errors.New("qrjobs: built-in export templates cannot be deleted")
	ErrQuotaExceeded    = errors.New("qrjobs: storage quota exceeded")
	ErrEmptyBatch       = errors.New("qrjobs: batch job needs at least one task")
)

// ValidationError reports malformed input caught before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation creates a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// EncodingError indicates the external encoder rejected otherwise-valid input.
type EncodingError struct {
	Err error
	// TooLong is set when the input does not fit the chosen error-correction level.
	TooLong bool
}

func (e *EncodingError) Error() string {
	if e.TooLong {
		return fmt.Sprintf("encoding failed: input too long for error-correction level: %v", e.Err)
	}
	return fmt.Sprintf("encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Encoding wraps an encoder failure.
func Encoding(err error, tooLong bool) error {
	return &EncodingError{Err: err, TooLong: tooLong}
}

// StorageError indicates a key-value store operation failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps a storage failure. A nil err returns nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// TimeoutError indicates a task exceeded its allotted time.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v", e.After)
}

// CancelledError indicates a user-initiated stop.
type CancelledError struct {
	Op string
}

func (e *CancelledError) Error() string {
	return e.Op + " cancelled"
}

// Cancelled creates a CancelledError.
func Cancelled(op string) error {
	return &CancelledError{Op: op}
}

// InvalidStateError indicates an operation against an incompatible job or task state.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: job is %s", e.Op, e.State)
}

// InvalidState creates an InvalidStateError.
func InvalidState(op string, state JobStatus) error {
	return &InvalidStateError{Op: op, State: string(state)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCancelled reports whether err is a CancelledError.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ie *InvalidStateError
	return errors.As(err, &ie)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRetryable reports whether a task failure should be retried.
// Validation and cancellation failures are final; everything else is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsCancelled(err) {
		return false
	}
	return true
}
