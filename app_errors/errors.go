// Package app_errors defines the coded error type shared by the scan engine,
// the cache layers and the HTTP surface.
package app_errors

import (
	stderrs "errors"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorCode classifies failures. Values are stable on the wire.
type ErrorCode uint16

const (
	// ErrorCodeInternal is for unclassified errors
	ErrorCodeInternal ErrorCode = iota

	// ErrorCodeInvalidPath is for scan roots that do not exist or are not directories
	ErrorCodeInvalidPath

	// ErrorCodeIo is for per-file read failures, absorbed by the processor
	ErrorCodeIo

	// ErrorCodeCacheCorrupt is for cache payloads that fail to decode
	ErrorCodeCacheCorrupt

	// ErrorCodePoolExhausted is for database connections that cannot be acquired
	ErrorCodePoolExhausted

	// ErrorCodeNoRunningScan is returned when a cancel targets an idle key
	ErrorCodeNoRunningScan

	// ErrorCodeValidation is for malformed requests and configuration
	ErrorCodeValidation
)

// String returns the snake_case name of the code
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeInvalidPath:
		return "invalid_path"
	case ErrorCodeIo:
		return "io_error"
	case ErrorCodeCacheCorrupt:
		return "cache_corrupt"
	case ErrorCodePoolExhausted:
		return "pool_exhausted"
	case ErrorCodeNoRunningScan:
		return "no_running_scan"
	case ErrorCodeValidation:
		return "validation"
	default:
		return "internal"
	}
}

// HTTPStatusCode turns an ErrorCode into an http status code
func HTTPStatusCode(c ErrorCode) int {
	switch c {
	case ErrorCodeInvalidPath, ErrorCodeValidation:
		return http.StatusBadRequest
	case ErrorCodeNoRunningScan:
		return http.StatusNotFound
	case ErrorCodePoolExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrNoRunningScan is the sentinel returned by cancellation of an idle key
var ErrNoRunningScan = New(ErrorCodeNoRunningScan, "no running scan")

// Error carries a machine code, an operation label and the wrapped cause
type Error struct {
	cause error
	msg   string
	code  ErrorCode
	op    string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.msg
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error { return e.cause }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation label
func (e *Error) Op() string { return e.op }

// Message returns the message without the cause
func (e *Error) Message() string { return e.msg }

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// New builds an error without a cause
func New(code ErrorCode, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Wrap attaches a code and an operation label to err. The cause keeps a stack trace.
func Wrap(err error, code ErrorCode, op, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{cause: errors.WithStack(err), code: code, op: op, msg: msg}
}

// Newf builds an error with a formatted message and an operation label
func Newf(code ErrorCode, op, format string, args ...any) error {
	return &Error{code: code, op: op, msg: fmt.Sprintf(format, args...)}
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts an ErrorCode from any error, defaulting to Internal
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeInternal
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus returns the mapped HTTP status for any error
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }
