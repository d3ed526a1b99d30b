// Package taskerr classifies engine errors so callers can decide
// user-visible messaging without string matching.
package taskerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Networkf(op, format string, args ...any) *Error {
	return New(KindNetwork, op, fmt.Errorf(format, args...))
}

func Authf(op, format string, args ...any) *Error {
	return New(KindAuth, op, fmt.Errorf(format, args...))
}

func NotFoundf(op, format string, args ...any) *Error {
	return New(KindNotFound, op, fmt.Errorf(format, args...))
}

func Validationf(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

// Classify wraps err as KindUnknown unless it is already classified.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(KindUnknown, op, err)
}

// KindOf returns the kind of a classified error, KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNetwork(err error) bool    { return KindOf(err) == KindNetwork }
func IsAuth(err error) bool       { return KindOf(err) == KindAuth }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
