// Package apperr is the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how the caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// Machine-readable codes surfaced to clients.
const (
	CodeInvalidRequest           = "INVALID_REQUEST"
	CodeInvalidToken             = "INVALID_TOKEN"
	CodeNotApplied               = "NOT_APPLIED"
	CodeKYCNotVerified           = "KYC_NOT_VERIFIED"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeNotFound                 = "NOT_FOUND"
	CodeWrongJob                 = "WRONG_JOB"
	CodeAlreadyAttended          = "ALREADY_ATTENDED"
	CodeSessionTempClosed        = "SESSION_TEMP_CLOSED"
	CodeSessionPermClosed        = "SESSION_PERM_CLOSED"
	CodeSessionAlreadyOpen       = "SESSION_ALREADY_OPEN"
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodePreviousRoundNotAttended = "PREVIOUS_ROUND_NOT_ATTENDED"
	CodeNotShortlisted           = "NOT_SHORTLISTED"
	CodeAwaitingResults          = "AWAITING_RESULTS"
	CodeNotEligible              = "NOT_ELIGIBLE"
	CodeConcurrentUpdate         = "CONCURRENT_UPDATE"
	CodeInternal                 = "INTERNAL"
)

// Error is a classified, user-presentable failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a detail field and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func newErr(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(code, format string, args ...any) *Error {
	return newErr(KindValidation, code, format, args...)
}

func Unauthorized(code, format string, args ...any) *Error {
	return newErr(KindUnauthorized, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newErr(KindForbidden, code, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newErr(KindNotFound, CodeNotFound, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newErr(KindConflict, code, format, args...)
}

// Internal wraps an unexpected failure; the message stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal server error", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HasCode reports whether err carries the given machine code.
func HasCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}
