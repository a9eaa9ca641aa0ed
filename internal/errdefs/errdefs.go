// Package errdefs defines the error taxonomy shared by the control-plane
// components. Adapters translate upstream failures into these kinds; the API
// layer maps kinds onto transport status codes.
package errdefs

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrTimeout             = errors.New("timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Kind classifies an error for transport mapping.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidArgument
	KindTimeout
	KindUpstreamUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindTimeout:
		return "timeout"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "internal"
	}
}

// ParseKind is the inverse of Kind.String. Unrecognized text is KindUnknown.
func ParseKind(s string) Kind {
	for k := KindNotFound; k <= KindUpstreamUnavailable; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Sentinel returns the sentinel error of k, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindTimeout:
		return ErrTimeout
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	default:
		return nil
	}
}

// KindOf returns the taxonomy kind of err. Deadline expiry anywhere in the
// chain counts as a timeout.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	default:
		return KindUnknown
	}
}

func IsNotFound(err error) bool            { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool            { return KindOf(err) == KindConflict }
func IsInvalidArgument(err error) bool     { return KindOf(err) == KindInvalidArgument }
func IsTimeout(err error) bool             { return KindOf(err) == KindTimeout }
func IsUpstreamUnavailable(err error) bool { return KindOf(err) == KindUpstreamUnavailable }

// ValidationError indicates an invalid input to an operation. It matches
// ErrInvalidArgument under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
