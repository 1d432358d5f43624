package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fastygo/courier-auth/domain"
)

// Type discriminates access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims is the payload carried by every token the codec issues.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string      `json:"id"`
	Role      domain.Role `json:"userType"`
	SessionID string      `json:"sessionId,omitempty"`
	Type      Type        `json:"type"`
}

// IssueOptions controls a single Issue call.
type IssueOptions struct {
	SessionID string
	Type      Type
	TTL       time.Duration
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// Codec signs and verifies HS256 tokens with a shared secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// New builds a codec. An empty secret is a deployment mistake and yields a config error.
func New(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, domain.ErrMissingSecret
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
		// expiry is checked against the injected clock in Verify
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for subject with the given role.
func (c *Codec) Issue(subject string, role domain.Role, opts IssueOptions) (string, error) {
	if opts.Type == "" {
		opts.Type = TypeAccess
	}
	now := c.now()
	claims := Claims{
		UserID:    subject,
		Role:      role,
		SessionID: opts.SessionID,
		Type:      opts.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure and expiry. Expired tokens yield
// domain.ErrTokenExpired, anything else domain.ErrTokenMalformed.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalidToken, domain.ErrTokenMalformed.Message, err)
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, domain.ErrTokenMalformed
	}
	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(c.now(), true) {
		return nil, domain.ErrTokenExpired
	}
	if claims.Type == "" {
		claims.Type = TypeAccess
	}
	return claims, nil
}

// LooksSigned reports whether raw has the three dot-separated segments of a JWT.
func LooksSigned(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// Expiry returns the expiry of verified claims, zero when absent.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
