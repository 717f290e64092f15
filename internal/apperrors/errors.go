package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed error raised by middleware and services. Status is the
// HTTP status the central handler answers with; Err is never serialized.
type Error struct {
	Status  int                   `json:"-"`
	Code    string                `json:"code,omitempty"`
	Message string                `json:"message"`
	Fields  map[string]FieldError `json:"errors,omitempty"`
	Err     error                 `json:"-"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Message string `json:"msg"`
	Value   any    `json:"value,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %s (%v)", e.Status, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by status and code so sentinel-style
// comparisons work on freshly constructed errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Code == t.Code
}

// WithErr attaches an internal cause without changing the public message.
func (e *Error) WithErr(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Validation aggregates per-field failures (422).
func Validation(fields map[string]FieldError) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidationError,
		Message: MsgValidationError,
		Fields:  fields,
	}
}

// FieldValidation is a single-field validation failure.
func FieldValidation(field, message string, value any) *Error {
	return Validation(map[string]FieldError{field: {Message: message, Value: value}})
}

func Unauthorized(code, message string) *Error {
	return New(http.StatusUnauthorized, code, message)
}

func Forbidden(code, message string) *Error {
	return New(http.StatusForbidden, code, message)
}

func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, CodeTooManyRequests, message)
}

// Internal wraps an unexpected failure (500). The cause stays server-side.
func Internal(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: MsgInternalServerError,
		Err:     err,
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 for untyped errors.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
