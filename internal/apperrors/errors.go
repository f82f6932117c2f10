// Package apperrors defines the error kinds shared by the pipeline, the services and the HTTP layer
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every "record does not exist" failure
var ErrNotFound = errors.New("not found")

// NotFound returns an error wrapping ErrNotFound for the given resource
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// ValidationError reports bad caller input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation creates a new ValidationError with a formatted message
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PreconditionError reports an operation that is not possible in the current record state,
// e.g. generating quizzes for a record without a transcript
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// Precondition creates a new PreconditionError with a formatted message
func Precondition(format string, args ...any) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// StorageError reports a media store failure
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a failure of an external service (transcription or LLM)
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	// Timeout is set when the call was abandoned because its deadline passed
	Timeout bool
	// Parse is set when the upstream answered but the body could not be decoded
	Parse bool
	Err   error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out: %s", e.Service, msg)
	case e.Parse:
		return fmt.Sprintf("%s returned malformed output: %s", e.Service, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed with status %d: %s", e.Service, e.StatusCode, msg)
	default:
		return fmt.Sprintf("%s failed: %s", e.Service, msg)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPrecondition reports whether err is or wraps a PreconditionError
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// IsStorage reports whether err is or wraps a StorageError
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsUpstream reports whether err is or wraps an UpstreamError
func IsUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}
