package ir

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
	}{
		{"not found", NewNotFoundError("users", "99"), http.StatusNotFound},
		{"validation", NewValidationError("/data", "missing type"), http.StatusBadRequest},
		{"unknown relationship", NewUnknownRelationshipError("users", "pets"), http.StatusNotFound},
		{"media type", NewUnsupportedMediaTypeError("text/plain"), http.StatusUnsupportedMediaType},
		{"not acceptable", NewNotAcceptableError("text/html"), http.StatusNotAcceptable},
		{"method", NewMethodNotAllowedError("users", "destroy"), http.StatusMethodNotAllowed},
		{"conflict", NewConflictError(errors.New("FOREIGN KEY constraint failed")), http.StatusConflict},
		{"too large", NewRequestTooLargeError(1 << 20), http.StatusRequestEntityTooLarge},
		{"internal", NewInternalError(errors.New("boom")), http.StatusInternalServerError},
		{"unknown code", &Error{Code: "OTHER"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status())
			assert.Equal(t, http.StatusText(tt.status), tt.err.Title())
		})
	}
}

func TestErrorHelpersUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("retrieve: %w", NewNotFoundError("users", "99"))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.False(t, IsUnknownRelationship(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, "NOT_FOUND: resource users with id 99 not found", NewNotFoundError("users", "99").Error())
}

func TestAsError(t *testing.T) {
	e := AsError(fmt.Errorf("wrap: %w", NewValidationError("", "bad")))
	assert.Equal(t, ErrCodeValidation, e.Code)

	cause := errors.New("disk on fire")
	e = AsError(cause)
	assert.Equal(t, ErrCodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)
}
