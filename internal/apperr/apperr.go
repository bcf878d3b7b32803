// Package apperr defines the gateway error taxonomy and its HTTP mapping.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the wire.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindPathSecurity
	KindNotFound
	KindValidation
	KindConflict
	KindParse
	KindTooLarge
	KindUnavailable
	KindIO
)

var kindNames = map[Kind]string{
	KindInternal:       "internal",
	KindAuthentication: "authentication",
	KindAuthorization:  "authorization",
	KindPathSecurity:   "path_security",
	KindNotFound:       "not_found",
	KindValidation:     "validation",
	KindConflict:       "conflict",
	KindParse:          "parse",
	KindTooLarge:       "too_large",
	KindUnavailable:    "unavailable",
	KindIO:             "io",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Authentication(msg string) *Error { return New(KindAuthentication, msg) }
func Authorization(msg string) *Error  { return New(KindAuthorization, msg) }
func NotFound(msg string) *Error       { return New(KindNotFound, msg) }
func Validation(msg string) *Error     { return New(KindValidation, msg) }
func Conflict(msg string) *Error       { return New(KindConflict, msg) }

// PathSecurity marks a sandbox escape. It renders exactly like a missing
// entry so clients learn nothing about the root layout.
func PathSecurity(cause error) *Error {
	return Wrap(KindPathSecurity, "path outside sandbox root", cause)
}

// IO wraps a filesystem failure behind a client-safe message.
func IO(msg string, cause error) *Error {
	return Wrap(KindIO, msg, cause)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind to an HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindPathSecurity, KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConflict, KindParse:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// notFoundText is the only body ever sent with a 404. Sandbox escapes and
// every flavour of missing entry must be indistinguishable on the wire.
const notFoundText = "not found"

// Public returns the message that may be shown to clients. Messages of
// not-found errors stay internal and only show up in logs.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindInternal:
			return "internal server error"
		case KindPathSecurity, KindNotFound:
			return notFoundText
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return "internal server error"
}
