package auth

import "github.com/fastygo/courier-auth/internal/token"

// RecoveryPolicy decides what happens when a refresh token verifies but the
// store holds no session for it, typically after a process restart.
//
// Recovering trades strict session pinning for availability: a refresh token
// stays usable until its natural expiry even if its session was deleted, unless
// a RevocationList is configured on the store.
type RecoveryPolicy interface {
	Recover(claims *token.Claims) bool
}

// RecoveryFunc adapts a function to RecoveryPolicy.
type RecoveryFunc func(claims *token.Claims) bool

func (f RecoveryFunc) Recover(claims *token.Claims) bool {
	return f(claims)
}

var (
	// AlwaysRecover mints a replacement session for every verified refresh token.
	AlwaysRecover RecoveryPolicy = RecoveryFunc(func(*token.Claims) bool { return true })
	// NeverRecover forces a new login whenever the session is missing.
	NeverRecover RecoveryPolicy = RecoveryFunc(func(*token.Claims) bool { return false })
)
