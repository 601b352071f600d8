package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	plain := New("NOT_FOUND", http.StatusNotFound, "request not found")
	assert.Equal(t, "request not found", plain.Error())

	cause := stderrors.New("sql: no rows in result set")
	wrapped := Wrap(cause, "INTERNAL_ERROR", http.StatusInternalServerError, "load request")
	assert.Equal(t, "load request: sql: no rows in result set", wrapped.Error())
	assert.True(t, stderrors.Is(wrapped, cause))
}

func TestFromErrorPassesTypedErrorsThrough(t *testing.T) {
	got := FromError(ErrTokenExpired)
	assert.Same(t, ErrTokenExpired, got)

	annotated := fmt.Errorf("resolve token: %w", ErrTokenAlreadyUsed)
	got = FromError(annotated)
	require.NotNil(t, got)
	assert.Equal(t, "TOKEN_ALREADY_USED", got.Code)
	assert.Equal(t, http.StatusConflict, got.Status)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	got := FromError(stderrors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, "INTERNAL_ERROR", got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)

	assert.Nil(t, FromError(nil))
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrValidation, "quantity must be a non-negative integer")
	require.NotNil(t, clone)
	assert.Equal(t, ErrValidation.Code, clone.Code)
	assert.Equal(t, ErrValidation.Status, clone.Status)
	assert.Equal(t, "quantity must be a non-negative integer", clone.Message)
	assert.Equal(t, "validation failed", ErrValidation.Message)

	kept := Clone(ErrForbidden, "")
	assert.Equal(t, ErrForbidden.Message, kept.Message)
	assert.NotSame(t, ErrForbidden, kept)
}

func TestStatusMapping(t *testing.T) {
	cases := map[*Error]int{
		ErrValidation:             http.StatusBadRequest,
		ErrUnauthorized:           http.StatusUnauthorized,
		ErrForbidden:              http.StatusForbidden,
		ErrNotFound:               http.StatusNotFound,
		ErrTokenNotFound:          http.StatusNotFound,
		ErrInvalidTransition:      http.StatusConflict,
		ErrConcurrentModification: http.StatusConflict,
		ErrTokenAlreadyUsed:       http.StatusConflict,
		ErrTokenExpired:           http.StatusGone,
		ErrUnknownReference:       http.StatusUnprocessableEntity,
		ErrExceedsAvailability:    http.StatusUnprocessableEntity,
		ErrOverAllocation:         http.StatusUnprocessableEntity,
		ErrInternal:               http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(t, status, err.Status, err.Code)
	}
}
