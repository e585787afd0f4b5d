// Package errors defines the error kinds surfaced by the annotation store and
// its extraction layer. Every kind is a sentinel that callers match with
// errors.Is; AppError attaches a human-readable message without hiding it.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEntryKind  = errors.New("invalid entry kind")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrMissingIndexInput = errors.New("missing index input")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownComponent  = errors.New("unknown component")
	ErrUnknownType       = errors.New("unknown entry type")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrDuplicateID       = errors.New("entry id already in use")
	ErrInvalidEntry      = errors.New("invalid entry")
	ErrInvalidInput      = errors.New("invalid input")
)

// Code is a coarse error classification used for logs and metric labels.
type Code string

const (
	CodeInvalidEntry     Code = "invalid_entry"
	CodeTypeMismatch     Code = "type_mismatch"
	CodeMissingInput     Code = "missing_input"
	CodeUnknownField     Code = "unknown_field"
	CodeUnknownComponent Code = "unknown_component"
	CodeNotFound         Code = "not_found"
	CodeInvalidInput     Code = "invalid_input"
	CodeInternal         Code = "internal"
)

type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Classify maps err onto its Code. Unrecognised errors are internal.
func Classify(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEntryKind), errors.Is(err, ErrInvalidEntry), errors.Is(err, ErrDuplicateID):
		return CodeInvalidEntry
	case errors.Is(err, ErrTypeMismatch):
		return CodeTypeMismatch
	case errors.Is(err, ErrMissingIndexInput):
		return CodeMissingInput
	case errors.Is(err, ErrUnknownField):
		return CodeUnknownField
	case errors.Is(err, ErrUnknownComponent):
		return CodeUnknownComponent
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrUnknownType):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}
