// Package apperr carries the error taxonomy shared by every feature package.
// Handlers map codes to HTTP statuses; services never import net/http.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknown      Code = "UNKNOWN"
	CodeInvalid      Code = "INVALID_ARGUMENT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "PERMISSION_DENIED"
	CodeUnauthorized Code = "UNAUTHENTICATED"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeInternal     Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func Invalid(msg string) error      { return New(CodeInvalid, msg) }
func NotFound(msg string) error     { return New(CodeNotFound, msg) }
func Forbidden(msg string) error    { return New(CodeForbidden, msg) }
func Unauthorized(msg string) error { return New(CodeUnauthorized, msg) }
func Internal(msg string) error     { return New(CodeInternal, msg) }

// Unavailable wraps store/transport reachability failures so callers can
// distinguish "it does not exist" from "we could not ask".
func Unavailable(msg string, cause error) error {
	return Wrap(CodeUnavailable, msg, cause)
}

// CodeOf extracts the taxonomy code from any error in the chain.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// HTTPStatus maps a taxonomy code to the status handlers should write.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalid:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
