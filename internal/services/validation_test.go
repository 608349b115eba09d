package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passcodeForm struct {
	Email    string `validate:"required,email"`
	OTP      string `validate:"required,passcode"`
	Password string `validate:"required,min=8,max=72"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&passcodeForm{Email: "alice@example.com", OTP: "012345", Password: "OldPassword123"})
		assert.NoError(t, err)
	})

	t.Run("invalid fields", func(t *testing.T) {
		err := vh.ValidateStruct(&passcodeForm{Email: "invalid-email", OTP: "12a456", Password: "short"})
		require.Error(t, err)

		var validationErrors validator.ValidationErrors
		require.True(t, errors.As(err, &validationErrors))
		assert.Len(t, validationErrors, 3)
	})

	t.Run("passcode must be six digits", func(t *testing.T) {
		for _, code := range []string{"12345", "1234567", "abcdef", " 12345"} {
			err := vh.ValidateStruct(&passcodeForm{Email: "alice@example.com", OTP: code, Password: "OldPassword123"})
			assert.Error(t, err, code)
		}
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("with validation details", func(t *testing.T) {
		err := NewValidationHelper().ValidateStruct(&passcodeForm{})
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "Email")
		assert.Contains(t, response.Details, "OTP")
	})

	t.Run("plain error ignores non-validation causes", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Not found", http.StatusNotFound, errors.New("boom"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Empty(t, response.Details)
	})
}

func TestSendServiceError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{NotFound("expense not found"), http.StatusNotFound, "expense not found"},
		{Conflict("account already exists"), http.StatusConflict, "account already exists"},
		{Unauthorized("invalid credentials"), http.StatusUnauthorized, "invalid credentials"},
		{InvalidCode("invalid passcode"), http.StatusUnauthorized, "invalid passcode"},
		{BadRequest("month filter requires year"), http.StatusBadRequest, "month filter requires year"},
		{Misconfigured("federated login is not configured"), http.StatusServiceUnavailable, "federated login is not configured"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "An Internal Error Occurred"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		SendServiceError(w, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.body)
		assert.Contains(t, w.Body.String(), tc.body)
		assert.NotContains(t, w.Body.String(), "pq:")
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	decode := func(raw string) (*httptest.ResponseRecorder, bool) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var dst body
		return w, DecodeJSON(w, r, &dst)
	}

	_, ok := decode(`{"email":"alice@example.com"}`)
	assert.True(t, ok)

	w, ok := decode(`{"email":"a","extra":1}`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, ok = decode(`{"email":"a"}{"email":"b"}`)
	assert.False(t, ok)
	assert.Contains(t, w.Body.String(), "single JSON object")

	w, ok = decode(`{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
