package token

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/courier-auth/domain"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func newCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	c, err := New("test-secret", WithClock(clock.Now), WithIssuer("courier-auth"))
	require.NoError(t, err)
	return c
}

func TestNew_MissingSecret(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConfig))
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	for _, role := range domain.Roles {
		raw, err := codec.Issue("user-42", role, IssueOptions{TTL: 15 * time.Minute})
		require.NoError(t, err)

		claims, err := codec.Verify(raw)
		require.NoError(t, err)
		assert.Equal(t, "user-42", claims.UserID)
		assert.Equal(t, role, claims.Role)
		assert.Equal(t, TypeAccess, claims.Type)
		assert.Empty(t, claims.SessionID)
		assert.Equal(t, "courier-auth", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
	}
}

func TestIssue_CarriesSessionAndType(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	raw, err := codec.Issue("agent-1", domain.RoleDeliveryAgent, IssueOptions{
		SessionID: "sess-1",
		Type:      TypeRefresh,
		TTL:       7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	claims, err := codec.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, TypeRefresh, claims.Type)
	assert.Equal(t, clock.now.Add(7*24*time.Hour).Unix(), claims.Expiry().Unix())
}

func TestVerify_Expired(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	raw, err := codec.Issue("user-1", domain.RoleCustomer, IssueOptions{TTL: time.Minute})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = codec.Verify(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
	assert.False(t, errors.Is(err, domain.ErrTokenMalformed))
}

func TestVerify_PastExpiryAtIssue(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	raw, err := codec.Issue("user-1", domain.RoleAdmin, IssueOptions{TTL: -time.Hour})
	require.NoError(t, err)

	_, err = codec.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestVerify_Malformed(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	other, err := New("another-secret", WithClock(clock.Now))
	require.NoError(t, err)
	foreign, err := other.Issue("user-1", domain.RoleAdmin, IssueOptions{TTL: time.Hour})
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":       "not-a-token",
		"three parts":   "a.b.c",
		"bad signature": foreign,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrTokenMalformed)
			assert.Equal(t, domain.ErrCodeInvalidToken, domain.CodeOf(err))
		})
	}
}

func TestVerify_UnknownRoleIsMalformed(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	raw, err := codec.Issue("user-1", domain.Role("courier"), IssueOptions{TTL: time.Hour})
	require.NoError(t, err)

	_, err = codec.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrTokenMalformed)
}

func TestParse(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)

	refresh, err := codec.Issue("user-1", domain.RoleCustomer, IssueOptions{SessionID: "s1", Type: TypeRefresh, TTL: time.Hour})
	require.NoError(t, err)
	access, err := codec.Issue("user-1", domain.RoleCustomer, IssueOptions{SessionID: "s1", TTL: time.Hour})
	require.NoError(t, err)

	t.Run("signed refresh", func(t *testing.T) {
		p, ok := codec.Parse(refresh).(Signed)
		require.True(t, ok)
		assert.Equal(t, "s1", p.Claims.SessionID)
		assert.Equal(t, refresh, p.Raw)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		p, ok := codec.Parse(access).(Rejected)
		require.True(t, ok)
		assert.ErrorIs(t, p.Err, domain.ErrTokenMalformed)
	})

	t.Run("legacy opaque string", func(t *testing.T) {
		p, ok := codec.Parse("4f1c9e0b7a").(Opaque)
		require.True(t, ok)
		assert.Equal(t, "4f1c9e0b7a", p.Value)
	})

	t.Run("expired refresh is rejected", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		p, ok := codec.Parse(refresh).(Rejected)
		require.True(t, ok)
		assert.ErrorIs(t, p.Err, domain.ErrTokenExpired)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := codec.Parse("   ").(Rejected)
		assert.True(t, ok)
	})
}
