// Package apperr defines the error kinds shared by the stores, the services and
// the HTTP layer. Each kind maps to exactly one HTTP status at the boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("store unavailable")
)

// Error attaches a human readable message to one of the kinds above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(what string) error {
	return &Error{Kind: ErrNotFound, Msg: what + " not found"}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a backend failure so callers can match ErrUnavailable
// while the cause stays available for logging.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, cause)
}

// Message returns the client-safe message for err. Errors that are not
// *Error values only expose their kind.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	for _, kind := range []error{ErrValidation, ErrUnauthorized, ErrNotFound, ErrConflict, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}
