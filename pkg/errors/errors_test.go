package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrUnknownField, "%s has no field %q", "Token", "pos")
	assert.True(t, errors.Is(err, ErrUnknownField))
	assert.Equal(t, `unknown field: Token has no field "pos"`, err.Error())

	wrapped := fmt.Errorf("extracting: %w", err)
	var appErr *AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, ErrUnknownField, appErr.Err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, ""},
		{New(ErrInvalidEntryKind, "x"), CodeInvalidEntry},
		{New(ErrDuplicateID, "x"), CodeInvalidEntry},
		{fmt.Errorf("wrap: %w", ErrTypeMismatch), CodeTypeMismatch},
		{ErrMissingIndexInput, CodeMissingInput},
		{ErrUnknownField, CodeUnknownField},
		{ErrUnknownComponent, CodeUnknownComponent},
		{ErrUnknownType, CodeNotFound},
		{ErrEntryNotFound, CodeNotFound},
		{ErrInvalidInput, CodeInvalidInput},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}
