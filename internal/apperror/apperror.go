// Package apperror defines the error kinds surfaced by the reservation core.
// Every error that leaves a service carries a stable Kind and a message that
// is safe to show to clients.  The transport layer maps kinds to status codes;
// nothing below the handlers knows about HTTP.
package apperror

import "errors"

// Kind classifies an error for callers.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization_failure"
	KindConflict      Kind = "conflict"
	KindUpstream      Kind = "upstream_failure"
	KindInternal      Kind = "internal"
)

// Error is a classified error.  Err keeps the underlying cause for logs and
// errors.Is checks; Message is what clients see.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error without an underlying cause.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap classifies err under kind.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func BadRequest(msg string) *Error    { return New(KindBadRequest, msg) }
func NotFound(msg string) *Error      { return New(KindNotFound, msg) }
func Authorization(msg string) *Error { return New(KindAuthorization, msg) }
func Conflict(msg string) *Error      { return New(KindConflict, msg) }
func Upstream(msg string, err error) *Error {
	return Wrap(KindUpstream, msg, err)
}

// KindOf reports the kind of the first *Error in err's chain.  Unclassified
// errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }
