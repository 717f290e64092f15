package handlers

import (
	"net/http"
	"testing"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRule(t *testing.T) {
	cases := map[string]bool{
		"Secret123!": true,
		"Ab1!xy":     true,
		"Ab1!x":      false,
		"secret123!": false,
		"SECRET123!": false,
		"Secret!!!!": false,
		"Secret1234": false,
	}
	for password, ok := range cases {
		err := validate(&ResetPasswordRequest{Password: password, ConfirmPassword: password})
		if ok {
			assert.NoError(t, err, password)
		} else {
			assert.Error(t, err, password)
		}
	}
}

func TestValidationAggregatesByJSONField(t *testing.T) {
	err := validate(&RegisterRequest{
		Email:           "not-an-email",
		Password:        "Secret123!",
		ConfirmPassword: "Secret123?",
	})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "confirm_password")
	assert.NotContains(t, appErr.Fields, "password")
	assert.Nil(t, appErr.Fields["confirm_password"].Value, "passwords are never echoed")
	assert.Equal(t, "not-an-email", appErr.Fields["email"].Value)
}

func TestBoardTypeRule(t *testing.T) {
	assert.NoError(t, validate(&CreateBoardRequest{Title: "Roadmap", Description: "Q3 plan", Type: "private"}))

	err := validate(&CreateBoardRequest{Title: "Roadmap", Description: "Q3 plan", Type: "secret"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Fields, "type")
}
