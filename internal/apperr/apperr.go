// Package apperr is the error taxonomy shared by the server, the API client
// and the cache.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for status mapping and UI display.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPStatus maps the kind to a response code. Transient errors seen on the
// server side are reported as 500.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTransient       = &Error{Kind: KindTransient}
)

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }
func Forbidden() *Error            { return New(KindForbidden, "Forbidden") }
func Unauthenticated() *Error      { return New(KindUnauthenticated, "Unauthorized") }
func NotFound(msg string) *Error   { return New(KindNotFound, msg) }

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FromStatus builds the client-side error for a non-2xx response.
func FromStatus(code int, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code == http.StatusBadRequest:
		return New(KindValidation, msg)
	case code == http.StatusUnauthorized:
		return New(KindUnauthenticated, msg)
	case code == http.StatusForbidden:
		return New(KindForbidden, msg)
	case code == http.StatusNotFound:
		return New(KindNotFound, msg)
	case code >= 500:
		return New(KindTransient, msg)
	default:
		return New(KindInternal, msg)
	}
}
