package model

import (
	"errors"
	"fmt"
)

// Error kinds.  Every error leaving the reservation engine matches exactly
// one of these with errors.Is.  ErrUnavailable is the only retryable kind.
var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyOccupied        = errors.New("seat already occupied")
	ErrDuplicateActiveBooking = errors.New("user already has an active library booking")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrUnavailable            = errors.New("service unavailable")
	ErrInvalid                = errors.New("invalid request")
)

// Error pairs a kind with a human readable message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// NewError builds an *Error of the given kind.
func NewError(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf formats msg and attaches cause.
func Errorf(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Unavailable wraps an infrastructure failure.
func Unavailable(cause error) *Error {
	return &Error{Kind: ErrUnavailable, Message: "seat store unavailable, try again", Cause: cause}
}

// Retryable reports whether a caller may retry the operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Message returns the text to show a user; causes are not exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Kind != nil {
			return e.Kind.Error()
		}
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal error"
}

// Kind returns the taxonomy sentinel err matches, or nil.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

var kinds = []error{
	ErrNotFound,
	ErrAlreadyOccupied,
	ErrDuplicateActiveBooking,
	ErrNotAuthorized,
	ErrUnauthenticated,
	ErrUnavailable,
	ErrInvalid,
}

// Wire codes carried in error bodies.
const (
	CodeNotFound               = "not_found"
	CodeAlreadyOccupied        = "already_occupied"
	CodeDuplicateActiveBooking = "duplicate_active_booking"
	CodeNotAuthorized          = "not_authorized"
	CodeUnauthenticated        = "unauthenticated"
	CodeUnavailable            = "unavailable"
	CodeInvalid                = "invalid_request"
	CodeInternal               = "internal"
)

var codes = map[error]string{
	ErrNotFound:               CodeNotFound,
	ErrAlreadyOccupied:        CodeAlreadyOccupied,
	ErrDuplicateActiveBooking: CodeDuplicateActiveBooking,
	ErrNotAuthorized:          CodeNotAuthorized,
	ErrUnauthenticated:        CodeUnauthenticated,
	ErrUnavailable:            CodeUnavailable,
	ErrInvalid:                CodeInvalid,
}

// Code returns the wire code for err.
func Code(err error) string {
	if c, ok := codes[Kind(err)]; ok {
		return c
	}
	return CodeInternal
}

// KindForCode maps a wire code back to its sentinel, or nil.
func KindForCode(code string) error {
	for k, c := range codes {
		if c == code {
			return k
		}
	}
	return nil
}
