package graph

import (
	"errors"
	"fmt"
)

// Code classifies a domain error into the stable taxonomy exposed at the
// protocol boundary. Internal state never leaks into error payloads — only
// the code and message travel.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeInvalidReference    Code = "INVALID_REFERENCE"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeValidation          Code = "VALIDATION_ERROR"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

// NotFoundf creates a NOT_FOUND error.
func NotFoundf(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidStatef creates an INVALID_STATE error.
func InvalidStatef(format string, args ...any) error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// InvalidReferencef creates an INVALID_REFERENCE error.
func InvalidReferencef(format string, args ...any) error {
	return &Error{Code: CodeInvalidReference, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a CONCURRENCY_CONFLICT error.
func Conflictf(format string, args ...any) error {
	return &Error{Code: CodeConcurrencyConflict, Message: fmt.Sprintf(format, args...)}
}

// Invalidf creates a VALIDATION_ERROR error.
func Invalidf(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, walking wrapped errors.
// Unclassified errors report as internal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }
