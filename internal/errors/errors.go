// Package errors provides the typed error taxonomy shared by every layer of
// the indicators service. Handlers translate a Code into an HTTP status or a
// gRPC code; services and repositories only ever construct *Error values.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	ErrCodeUnauthenticated    Code = "UNAUTHENTICATED"
	ErrCodeForbidden          Code = "FORBIDDEN"
	ErrCodeValidation         Code = "VALIDATION_ERROR"
	ErrCodeNotFound           Code = "NOT_FOUND"
	ErrCodeConflict           Code = "CONFLICT"
	ErrCodeInvalidState       Code = "INVALID_STATE"
	ErrCodeNothingToApprove   Code = "NOTHING_TO_APPROVE"
	ErrCodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	ErrCodeInternal           Code = "INTERNAL"
)

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Field   string // set for validation failures
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// InvalidInput reports a malformed or missing field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Field: field}
}

// NotFound reports a referenced record that does not exist.
func NotFound(resource string, id any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// Forbidden reports a policy denial.
func Forbidden(message string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: message}
}

// Unauthenticated hides the concrete token failure behind a single message.
// The cause is kept for logs.
func Unauthenticated(cause error) *Error {
	return &Error{Code: ErrCodeUnauthenticated, Message: "unauthenticated", Cause: cause}
}

// CodeOf extracts the code from any error. Errors that are not *Error map to
// ErrCodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode checks if the error carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// As is a thin alias over the standard library so callers importing this
// package under the name "errors" keep access to it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is a thin alias over the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// HTTPStatus maps a code to the status returned by the HTTP handler.
func (c Code) HTTPStatus() int {
	switch c {
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodeNothingToApprove:
		return http.StatusUnprocessableEntity
	case ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a code to a gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case ErrCodeUnauthenticated:
		return codes.Unauthenticated
	case ErrCodeForbidden:
		return codes.PermissionDenied
	case ErrCodeValidation:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeConflict:
		return codes.AlreadyExists
	case ErrCodeInvalidState, ErrCodeNothingToApprove:
		return codes.FailedPrecondition
	case ErrCodeStorageUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
