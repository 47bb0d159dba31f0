// Package errs defines the error taxonomy shared by the HTTP handlers and
// the live arena. Every operation failure is one of these codes; none is
// fatal to the process.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeInvalidRequest Code = iota + 1
	CodeUnauthorized
	CodeForbidden
	CodeNotFound
	CodeAlreadyStarted
	CodePersistence
	CodeInternal
)

var code2http = map[Code]int{
	CodeInvalidRequest: http.StatusBadRequest,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeForbidden:      http.StatusForbidden,
	CodeNotFound:       http.StatusNotFound,
	CodeAlreadyStarted: http.StatusConflict,
	CodePersistence:    http.StatusInternalServerError,
	CodeInternal:       http.StatusInternalServerError,
}

var code2string = map[Code]string{
	CodeInvalidRequest: "invalid_request",
	CodeUnauthorized:   "unauthorized",
	CodeForbidden:      "forbidden",
	CodeNotFound:       "not_found",
	CodeAlreadyStarted: "already_started",
	CodePersistence:    "persistence_failure",
	CodeInternal:       "internal",
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", code2string[e.Code], e.Message)
	if e.err != nil {
		s += fmt.Sprintf(": %v", e.err)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}
	return http.StatusInternalServerError
}

// Convert normalizes any error into an *Error, wrapping unknown errors as
// internal so handlers never leak raw error strings with a 200-range code.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Wrap(CodeInternal, "internal error", err)
	}
	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func InvalidRequest(message string) *Error { return New(CodeInvalidRequest, message) }
func Forbidden(message string) *Error      { return New(CodeForbidden, message) }
func NotFound(message string) *Error       { return New(CodeNotFound, message) }
func AlreadyStarted(message string) *Error { return New(CodeAlreadyStarted, message) }
