package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeReservedByOther, http.StatusConflict},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeTokenExpired, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeValidation, http.StatusBadRequest},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	err := ReservedByOther("P1 is held by someone else")
	assert.True(t, Is(err, ErrReservedByOther))
	assert.False(t, Is(err, ErrNotFound))
}

func TestError_WrapsAndUnwraps(t *testing.T) {
	cause := fmt.Errorf("badger: disk full")
	err := Wrap(cause, CodeInternal, "failed to write reservation")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to write reservation")
	assert.Contains(t, err.Error(), "disk full")
}

func TestError_WithDetails(t *testing.T) {
	err := ValidationWithDetails("invalid request", map[string]string{"product_id": "required"})

	var domainErr *Error
	require.True(t, As(err, &domainErr))
	assert.Equal(t, CodeValidation, domainErr.Code)
	assert.NotNil(t, domainErr.Details)
}

func TestError_IsThroughWrapping(t *testing.T) {
	inner := NotFound("reservation missing")
	outer := fmt.Errorf("extend failed: %w", inner)

	assert.True(t, Is(outer, ErrNotFound))
}
