package document

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/roach88/jsonapi/internal/ir"
)

// ErrorSource points at the cause of an error in the request.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
	Header    string `json:"header,omitempty"`
}

// ErrorObject is a JSON:API error object.
type ErrorObject struct {
	ID     string       `json:"id,omitempty"`
	Status string       `json:"status,omitempty"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
	Meta   Meta         `json:"meta,omitempty"`
}

// NewErrorObject validates and returns an error object.
// An object without any member is a VALIDATION error.
func NewErrorObject(e ErrorObject) (*ErrorObject, error) {
	if e.ID == "" && e.Status == "" && e.Code == "" && e.Title == "" &&
		e.Detail == "" && e.Source == nil && len(e.Meta) == 0 {
		return nil, ir.NewValidationError("", "error object must include at least one field")
	}
	return &e, nil
}

// InternalErrorDetail is the detail of every INTERNAL error object. The
// cause goes to the server log only.
const InternalErrorDetail = "An unexpected error occurred."

// ErrorFromErr maps any error onto an error object. Errors that are not an
// *ir.Error are reported as 500 Internal Server Error with a generic detail.
func ErrorFromErr(err error) *ErrorObject {
	e := ir.AsError(err)

	obj := &ErrorObject{
		ID:     uuid.NewString(),
		Status: strconv.Itoa(e.Status()),
		Code:   string(e.Code),
		Title:  e.Title(),
		Detail: e.Message,
	}
	if e.Code == ir.ErrCodeInternal {
		obj.Detail = InternalErrorDetail
	}
	if e.Pointer != "" || e.Parameter != "" {
		obj.Source = &ErrorSource{Pointer: e.Pointer, Parameter: e.Parameter}
	}
	return obj
}

// ErrorDocument returns the error document for err and its HTTP status.
func ErrorDocument(err error) (*Document, int) {
	return BuildError(ErrorFromErr(err)), ir.AsError(err).Status()
}
