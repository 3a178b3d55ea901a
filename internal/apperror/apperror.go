// Package apperror defines the rejection taxonomy returned by the OTP service.
// Every rejection carries a Kind callers can branch on and a human message.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes a rejection.
type Kind string

const (
	KindInvalidFormat    Kind = "INVALID_FORMAT"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindDeliveryFailure  Kind = "DELIVERY_FAILURE"
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidCode      Kind = "INVALID_CODE"
	KindAttemptsExceeded Kind = "ATTEMPTS_EXCEEDED"
	KindInternal         Kind = "INTERNAL"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// HTTPStatus is the suggested HTTP status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidFormat, KindInvalidCode:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited, KindAttemptsExceeded:
		return http.StatusTooManyRequests
	case KindDeliveryFailure:
		return http.StatusBadGateway
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed if simply repeated.
// Only infrastructure failures qualify; policy rejections need the window to
// lapse or a new code.
func (k Kind) Retryable() bool {
	return k == KindDeliveryFailure || k == KindStoreUnavailable
}

// Error is a rejection with a kind, message and optional details.
type Error struct {
	Kind    Kind                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	// Err is the underlying cause (not exported in JSON)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error and returns the error for chaining
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a rejection of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
