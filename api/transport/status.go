package transport

import (
	"errors"
	"net/http"

	"github.com/fastygo/courier-auth/domain"
)

var statusByCode = map[domain.ErrorCode]int{
	domain.ErrCodeNoToken:                http.StatusUnauthorized,
	domain.ErrCodeInvalidToken:           http.StatusUnauthorized,
	domain.ErrCodeTokenExpired:           http.StatusUnauthorized,
	domain.ErrCodeUserNotFound:           http.StatusUnauthorized,
	domain.ErrCodeAccountInactive:        http.StatusUnauthorized,
	domain.ErrCodeSessionExpired:         http.StatusUnauthorized,
	domain.ErrCodeInvalidCredentials:     http.StatusUnauthorized,
	domain.ErrCodeInsufficientPrivileges: http.StatusForbidden,
	domain.ErrCodeSessionNotFound:        http.StatusNotFound,
	domain.ErrCodeTooManyAttempts:        http.StatusTooManyRequests,
	domain.ErrCodeInvalid:                http.StatusBadRequest,
	domain.ErrCodeConfig:                 http.StatusInternalServerError,
	domain.ErrCodeInternal:               http.StatusInternalServerError,
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code domain.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorFor classifies err and builds the matching envelope. Internal failures
// never leak their cause to the client.
func ErrorFor(err error) (int, Envelope) {
	code := domain.CodeOf(err)
	message := err.Error()

	var (
		meta    any
		dErr    *domain.Error
		tooMany *domain.TooManyAttemptsError
	)
	switch {
	case code == domain.ErrCodeInternal || code == domain.ErrCodeConfig:
		message = "internal server error"
	case errors.As(err, &tooMany):
		meta = map[string]int{"remainingMinutes": tooMany.RemainingMinutes}
	case errors.As(err, &dErr):
		message = dErr.Message
	}
	return StatusFor(code), NewError(string(code), message, meta)
}
