package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNoToken                ErrorCode = "NO_TOKEN"
	ErrCodeInvalidToken           ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired           ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInsufficientPrivileges ErrorCode = "INSUFFICIENT_PRIVILEGES"
	ErrCodeUserNotFound           ErrorCode = "USER_NOT_FOUND"
	ErrCodeAccountInactive        ErrorCode = "ACCOUNT_INACTIVE"
	ErrCodeSessionExpired         ErrorCode = "SESSION_EXPIRED"
	ErrCodeSessionNotFound        ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeInvalidCredentials     ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTooManyAttempts        ErrorCode = "TOO_MANY_ATTEMPTS"
	ErrCodeConfig                 ErrorCode = "CONFIG_ERROR"
	ErrCodeInvalid                ErrorCode = "INVALID"
	ErrCodeInternal               ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any domain error carrying the same code, so wrapped variants
// still satisfy errors.Is against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Authentication errors. Messages are user facing.
var (
	ErrNoToken                = NewError(ErrCodeNoToken, "access denied, no valid token provided")
	ErrTokenMalformed         = NewError(ErrCodeInvalidToken, "invalid token")
	ErrTokenExpired           = NewError(ErrCodeTokenExpired, "token expired")
	ErrInsufficientPrivileges = NewError(ErrCodeInsufficientPrivileges, "access denied, insufficient privileges")
	ErrUserNotFound           = NewError(ErrCodeUserNotFound, "user not found or has been deactivated")
	ErrAccountInactive        = NewError(ErrCodeAccountInactive, "account is inactive or suspended")
	ErrSessionExpired         = NewError(ErrCodeSessionExpired, "session expired, please login again")
	ErrSessionNotFound        = NewError(ErrCodeSessionNotFound, "session not found")
	ErrInvalidCredentials     = NewError(ErrCodeInvalidCredentials, "invalid credentials")
	ErrMissingSecret          = NewError(ErrCodeConfig, "signing secret is not configured")
	ErrInvalidPayload         = NewError(ErrCodeInvalid, "invalid payload")
)

// TooManyAttemptsError reports a lockout along with the minutes left on it.
type TooManyAttemptsError struct {
	RemainingMinutes int
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d minutes", e.RemainingMinutes)
}

// Code lets transport layers classify the lockout like any other domain error.
func (e *TooManyAttemptsError) Code() ErrorCode {
	return ErrCodeTooManyAttempts
}

// CodeOf extracts the error code, falling back to INTERNAL.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	var tooMany *TooManyAttemptsError
	if errors.As(err, &tooMany) {
		return ErrCodeTooManyAttempts
	}
	return ErrCodeInternal
}

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
