package errors

import stderrors "errors"

// Error is the coded error type surfaced to clients as an error frame.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message sent to the client
	Cause   error  // Wrapped underlying error, never sent to the client
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
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

// New creates a coded error with a client-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error that keeps an underlying cause for logs.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// MessageOf returns the client-facing message for err. Uncoded errors get a
// generic message so internal details never reach a client.
func MessageOf(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}
