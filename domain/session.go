package domain

import "time"

// DeviceInfo is free-form, non-authoritative client metadata.
type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

// RecoveredDevice marks sessions re-created from a surviving refresh token.
var RecoveredDevice = DeviceInfo{UserAgent: "Recovered Session", IP: "unknown"}

// Session represents one authenticated device held in the in-memory store.
type Session struct {
	ID           string     `json:"session_id"`
	UserID       string     `json:"user_id"`
	Role         Role       `json:"user_type"`
	Device       DeviceInfo `json:"device_info"`
	RefreshToken string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
}

// Age reports how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Idle reports how long the session has been unused.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Summary strips token material for listings.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		UserID:       s.UserID,
		Role:         s.Role,
		Device:       s.Device,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Active:       true,
	}
}

// SessionSummary is a session as exposed to its owner.
type SessionSummary struct {
	ID           string     `json:"session_id"`
	UserID       string     `json:"user_id"`
	Role         Role       `json:"user_type"`
	Device       DeviceInfo `json:"device_info"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	Active       bool       `json:"active"`
}

// TokenPair is the wire response of login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	SessionID    string `json:"sessionId,omitempty"`
}
