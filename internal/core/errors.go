package core

import (
	"errors"
	"fmt"
)

// Kind classifies domain failures. The value is stable and machine readable.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
)

// Error is a domain failure surfaced to callers. It never indicates an
// infrastructure problem; those are returned as wrapped errors.
type Error struct {
	Kind    Kind
	Field   string // field key, when the failure is about one field
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validationf returns a KindValidation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflictf returns a KindConflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a KindNotFound error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func fieldError(key, format string, args ...any) error {
	return &Error{Kind: KindValidation, Field: key, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k anywhere in its chain.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// ErrSequenceConflict is returned by a store when two writers computed the
// same submission_seq for a form. Submit retries the transaction on it.
var ErrSequenceConflict = errors.New("submission sequence conflict")
