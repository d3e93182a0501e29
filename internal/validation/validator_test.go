package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/reloveapp/relove-server/internal/errors"
	"github.com/reloveapp/relove-server/internal/validation"
)

type reserveRequest struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,dive,required"`
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"displayName" validate:"required"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(registerRequest{
		Email:       "kira@example.com",
		Password:    "password123",
		DisplayName: "Kira",
	})
	assert.NoError(t, err)

	err = v.Validate(reserveRequest{ProductIDs: []string{"prod-1", "prod-2"}})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name       string
		req        any
		wantField  string
	}{
		{
			name: "missing required field",
			req: registerRequest{
				Email:    "kira@example.com",
				Password: "password123",
			},
			wantField: "displayName",
		},
		{
			name: "invalid email",
			req: registerRequest{
				Email:       "not-an-email",
				Password:    "password123",
				DisplayName: "Kira",
			},
			wantField: "email",
		},
		{
			name: "password too short",
			req: registerRequest{
				Email:       "kira@example.com",
				Password:    "short",
				DisplayName: "Kira",
			},
			wantField: "password",
		},
		{
			name:      "empty product batch",
			req:       reserveRequest{},
			wantField: "productIds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())
			assert.Contains(t, domainErr.Details, tt.wantField)
		})
	}
}

func TestValidator_UsesJSONTagNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(registerRequest{Password: "password123", DisplayName: "Kira"})
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Contains(t, domainErr.Details, "email")
	assert.NotContains(t, domainErr.Details, "Email")
}
