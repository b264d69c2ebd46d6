package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures independently of transport.
type ErrorKind string

const (
	ErrInvalidInput        ErrorKind = "invalid_input"
	ErrResourceNotFound    ErrorKind = "resource_not_found"
	ErrProviderUnavailable ErrorKind = "provider_unavailable"
	ErrTimeout             ErrorKind = "timeout"
	ErrInvalidModelOutput  ErrorKind = "invalid_model_output"
	ErrSchemaViolation     ErrorKind = "schema_violation"
	ErrCancelled           ErrorKind = "cancelled"
	ErrInternal            ErrorKind = "internal"
)

// Recoverable reports whether the caller can sensibly retry with altered
// input. invalid_input, resource_not_found, and timeout are recoverable;
// internal and schema_violation are not.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrInvalidInput, ErrResourceNotFound, ErrTimeout:
		return true
	}
	return false
}

// Error is the structural error surfaced across component boundaries. Phase
// is set by the curation pipeline to name the failing phase.
type Error struct {
	Kind  ErrorKind
	Phase string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s: phase %s: %s", e.Kind, e.Phase, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error wrapping a cause.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// Emoji markers for user-visible messages.
const (
	MarkFailure    = "❌"
	MarkInProgress = "⏳"
	MarkSuccess    = "✅"
	MarkInfo       = "ℹ️"
)

// UserMessage renders an error as the single textual message shown to users.
func UserMessage(err error) string {
	return fmt.Sprintf("%s %s", MarkFailure, err.Error())
}
