/*
Package salesman – error types.
*/
package salesman

import (
	"errors"
	"fmt"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	ErrArgument            ErrorCode = "ArgumentError"
	ErrInvalidDefinition   ErrorCode = "InvalidDefinition"
	ErrInvalidPath         ErrorCode = "InvalidPath"
	ErrUnknownRelationship ErrorCode = "UnknownRelationship"
	ErrCapabilityDenied    ErrorCode = "CapabilityDenied"
	ErrRemote              ErrorCode = "RemoteError"
	ErrBatchUnsupported    ErrorCode = "BatchUnsupported"
)

// Error is the error type returned by every package operation. It carries a
// Code and a free-form Context map for extra debugging data.
type Error struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("salesman: [%s] %s", e.Code, e.Message)
	}
	return "salesman: " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error.
func NewError(msg string, opts ...func(*Error)) *Error {
	err := &Error{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*Error) {
	return func(e *Error) { e.Code = c }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

// NewArgError constructs an argument error.
func NewArgError(msg string) *Error {
	return &Error{Message: msg, Code: ErrArgument}
}

// IsCode reports whether err (or anything it wraps) is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
