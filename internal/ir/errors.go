package ir

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a failure that is reported to a client as a JSON:API
// error object.
//
// Errors include:
//   - Not found: the primary resource id does not exist
//   - Validation: a malformed request body or error object
//   - Unknown relationship: a relationship route names an undeclared relationship
//   - Media type errors: content negotiation failures (415, 406)
//   - Conflict: a write rejected by a database constraint
//   - Request too large: a body over the size limit
//   - Internal: any unexpected failure, reported with a generic title
//
// Read-side query interpretation never produces an Error; unresolvable
// filters, sorts and includes degrade to "no constraint" instead.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description, used as the error detail.
	Message string

	// Pointer is a JSON pointer into the request document, when applicable.
	Pointer string

	// Parameter names the offending query parameter, when applicable.
	Parameter string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the requested resource does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation indicates a malformed request.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeUnknownRelationship indicates an undeclared relationship name.
	ErrCodeUnknownRelationship ErrorCode = "UNKNOWN_RELATIONSHIP"

	// ErrCodeUnsupportedMediaType indicates a bad Content-Type.
	ErrCodeUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"

	// ErrCodeNotAcceptable indicates an Accept header without the JSON:API media type.
	ErrCodeNotAcceptable ErrorCode = "NOT_ACCEPTABLE"

	// ErrCodeMethodNotAllowed indicates an action that is not enabled for the resource.
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"

	// ErrCodeConflict indicates a write rejected by a database constraint.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeRequestTooLarge indicates a request body over the size limit.
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"

	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeValidation:           http.StatusBadRequest,
	ErrCodeUnknownRelationship:  http.StatusNotFound,
	ErrCodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	ErrCodeNotAcceptable:        http.StatusNotAcceptable,
	ErrCodeMethodNotAllowed:     http.StatusMethodNotAllowed,
	ErrCodeConflict:             http.StatusConflict,
	ErrCodeRequestTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeInternal:             http.StatusInternalServerError,
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error code.
func (e *Error) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Title returns the HTTP status text for the error code.
func (e *Error) Title() string {
	return http.StatusText(e.Status())
}

// AsError extracts an *Error from err.
// Errors that are not an *Error are wrapped as ErrCodeInternal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternalError(err)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if the error is a not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsUnknownRelationship returns true if the error names an undeclared relationship.
func IsUnknownRelationship(err error) bool {
	return hasCode(err, ErrCodeUnknownRelationship)
}

// IsConflict returns true if a write violated a database constraint.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// NewNotFoundError creates an Error for a missing resource.
func NewNotFoundError(typ, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("resource %s with id %s not found", typ, id),
	}
}

// NewValidationError creates an Error for a malformed request.
func NewValidationError(pointer, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
		Pointer: pointer,
	}
}

// NewUnknownRelationshipError creates an Error for an undeclared relationship.
func NewUnknownRelationshipError(typ, name string) *Error {
	return &Error{
		Code:    ErrCodeUnknownRelationship,
		Message: fmt.Sprintf("resource %s has no relationship %s", typ, name),
	}
}

// NewUnsupportedMediaTypeError creates an Error for a rejected Content-Type.
func NewUnsupportedMediaTypeError(contentType string) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedMediaType,
		Message: fmt.Sprintf("unsupported media type %q", contentType),
	}
}

// NewNotAcceptableError creates an Error for a rejected Accept header.
func NewNotAcceptableError(accept string) *Error {
	return &Error{
		Code:    ErrCodeNotAcceptable,
		Message: fmt.Sprintf("cannot produce a response acceptable to %q", accept),
	}
}

// NewMethodNotAllowedError creates an Error for a disabled action.
func NewMethodNotAllowedError(typ, action string) *Error {
	return &Error{
		Code:    ErrCodeMethodNotAllowed,
		Message: fmt.Sprintf("action %s is not allowed on %s", action, typ),
	}
}

// NewConflictError wraps a constraint violation reported by the database.
func NewConflictError(err error) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: "the request conflicts with existing data",
		Err:     err,
	}
}

// NewRequestTooLargeError creates an Error for a body over limit bytes.
func NewRequestTooLargeError(limit int64) *Error {
	return &Error{
		Code:    ErrCodeRequestTooLarge,
		Message: fmt.Sprintf("request body exceeds the limit of %d bytes", limit),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrCodeInternal,
		Message: msg,
		Err:     err,
	}
}
