package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/courier-auth/domain"
)

func TestErrorFor(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"no token", domain.ErrNoToken, http.StatusUnauthorized, "NO_TOKEN", domain.ErrNoToken.Message},
		{"wrapped invalid", domain.WrapError(domain.ErrCodeInvalidToken, "invalid token", errors.New("signature is invalid")), http.StatusUnauthorized, "INVALID_TOKEN", "invalid token"},
		{"privileges", domain.ErrInsufficientPrivileges, http.StatusForbidden, "INSUFFICIENT_PRIVILEGES", domain.ErrInsufficientPrivileges.Message},
		{"session not found", domain.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found"},
		{"payload", domain.ErrInvalidPayload, http.StatusBadRequest, "INVALID", "invalid payload"},
		{"plain error", errors.New("dial tcp: refused"), http.StatusInternalServerError, "INTERNAL", "internal server error"},
		{"config", domain.ErrMissingSecret, http.StatusInternalServerError, "CONFIG_ERROR", "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := ErrorFor(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, "error", env.Status)
			assert.Equal(t, tc.code, env.Code)
			assert.Equal(t, tc.message, env.Error)
		})
	}
}

func TestErrorFor_TooManyAttempts(t *testing.T) {
	status, env := ErrorFor(&domain.TooManyAttemptsError{RemainingMinutes: 7})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", env.Code)
	assert.Equal(t, "too many failed attempts, try again in 7 minutes", env.Error)
	assert.Equal(t, map[string]int{"remainingMinutes": 7}, env.Meta)
}

func TestWriteError(t *testing.T) {
	var ctx fasthttp.RequestCtx
	WriteError(&ctx, domain.ErrTokenExpired)

	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

	var body map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, map[string]any{"status": "error", "code": "TOKEN_EXPIRED", "error": "token expired"}, body)
}
