package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates the auth failure variants. Handlers map each kind to a
// fixed HTTP status and a stable machine-readable code; messages stay
// generic so responses never reveal which check failed.
type Kind int

const (
	// KindTokenInvalid – malformed token or bad signature.
	KindTokenInvalid Kind = iota
	// KindTokenExpired – valid signature, exp in the past. Covers both the
	// access and refresh variants.
	KindTokenExpired
	// KindSessionExpired – token cryptographically valid but its backing
	// session row is gone or past expiry; the client must re-authenticate.
	KindSessionExpired
	// KindUnauthorized – no usable credentials at all.
	KindUnauthorized
	// KindValidation – malformed input (e.g. external identity without an
	// email).
	KindValidation
	// KindInternal – persistence or crypto failure; detail is logged
	// server-side and never echoed.
	KindInternal
)

// Error is the tagged auth failure carried across the service boundary.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the stable error code exposed in HTTP responses.
func (e *Error) Code() string {
	switch e.Kind {
	case KindTokenInvalid:
		return "TOKEN_INVALID"
	case KindTokenExpired:
		return "TOKEN_EXPIRED"
	case KindSessionExpired:
		return "SESSION_EXPIRED"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindValidation:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Status returns the HTTP status the kind maps to.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// PublicMessage is the sanitized message sent to clients. Internal errors
// always collapse to a fixed string.
func (e *Error) PublicMessage() string {
	if e.Kind == KindInternal {
		return "internal error"
	}
	return e.Message
}

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrapInternal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: err}
}

// Constructors for the fixed variants. Exported so the gateway and handlers
// can produce the same shapes the services do.
func ErrTokenInvalid() *Error   { return newError(KindTokenInvalid, "invalid token") }
func ErrTokenExpired() *Error   { return newError(KindTokenExpired, "token expired") }
func ErrSessionExpired() *Error { return newError(KindSessionExpired, "session expired") }
func ErrUnauthorized() *Error   { return newError(KindUnauthorized, "missing or invalid tokens") }

// ErrValidation builds a validation failure with a caller-supplied message.
func ErrValidation(msg string) *Error { return newError(KindValidation, msg) }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
