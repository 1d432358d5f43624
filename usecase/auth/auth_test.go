package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/internal/cache"
	"github.com/fastygo/courier-auth/internal/ratelimit"
)

type stubUsers struct {
	creds map[string]*domain.Credentials
	err   error
}

func (s *stubUsers) FindByID(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	for _, c := range s.creds {
		if c.User.ID == id && c.User.Role == role {
			return c.User, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubUsers) FindCredentials(_ context.Context, login string, role domain.Role) (*domain.Credentials, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.creds[role.String()+":"+login]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return c, nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

type useCaseFixture struct {
	*fixture
	users   *stubUsers
	limiter *ratelimit.Guard
	cache   *cache.UserCache
	uc      *UseCase
}

func newUseCaseFixture(t *testing.T) *useCaseFixture {
	t.Helper()
	f := newFixture(t, SessionConfig{}, nil)
	users := &stubUsers{creds: map[string]*domain.Credentials{
		"customer:jane@example.com": {
			User:         &domain.User{ID: "cust-1", Email: "jane@example.com", Role: domain.RoleCustomer, Enabled: true},
			PasswordHash: hash(t, "s3cret"),
		},
		"delivery_agent:sam@example.com": {
			User:         &domain.User{ID: "agent-1", Email: "sam@example.com", Role: domain.RoleDeliveryAgent, Status: "suspended"},
			PasswordHash: hash(t, "s3cret"),
		},
	}}
	limiter := ratelimit.New(ratelimit.Config{Now: f.clock.Now})
	userCache := cache.NewUserCache(cache.Config{Now: f.clock.Now})
	return &useCaseFixture{
		fixture: f,
		users:   users,
		limiter: limiter,
		cache:   userCache,
		uc:      New(users, f.store, limiter, userCache, nil),
	}
}

func TestLogin_Success(t *testing.T) {
	f := newUseCaseFixture(t)

	pair, err := f.uc.Login(context.Background(), LoginInput{
		Role:     domain.RoleCustomer,
		Login:    "jane@example.com",
		Password: "s3cret",
		Device:   laptop,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.SessionID)
	assert.Equal(t, "15m0s", pair.ExpiresIn)
	assert.True(t, f.store.ValidateSession(pair.SessionID))

	claims, err := f.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", claims.UserID)
	assert.Equal(t, pair.SessionID, claims.SessionID)

	_, cached := f.cache.Get(domain.RoleCustomer, "cust-1")
	assert.True(t, cached)
}

func TestLogin_WrongPasswordCountsTowardsLockout(t *testing.T) {
	f := newUseCaseFixture(t)
	ctx := context.Background()
	in := LoginInput{Role: domain.RoleCustomer, Login: "jane@example.com", Password: "wrong"}

	for i := 0; i < ratelimit.DefaultMaxAttempts; i++ {
		_, err := f.uc.Login(ctx, in)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	in.Password = "s3cret"
	_, err := f.uc.Login(ctx, in)
	var tooMany *domain.TooManyAttemptsError
	require.True(t, errors.As(err, &tooMany))
	assert.Equal(t, 15, tooMany.RemainingMinutes)

	f.clock.Advance(ratelimit.DefaultLockout + 1)
	_, err = f.uc.Login(ctx, in)
	assert.NoError(t, err)
	assert.Equal(t, 0, f.limiter.Failures("customer:jane@example.com"))
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newUseCaseFixture(t)
	_, err := f.uc.Login(context.Background(), LoginInput{Role: domain.RoleAdmin, Login: "ghost", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, 1, f.limiter.Failures("admin:ghost"))
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newUseCaseFixture(t)
	_, err := f.uc.Login(context.Background(), LoginInput{Role: domain.RoleDeliveryAgent, Login: "sam@example.com", Password: "s3cret"})
	assert.ErrorIs(t, err, domain.ErrAccountInactive)
	assert.Equal(t, 0, f.store.Count())
}

func TestLogin_StorageFailureIsInternal(t *testing.T) {
	f := newUseCaseFixture(t)
	f.users.err = errors.New("connection refused")

	_, err := f.uc.Login(context.Background(), LoginInput{Role: domain.RoleCustomer, Login: "jane@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInternal, domain.CodeOf(err))
	assert.Equal(t, 0, f.limiter.Failures("customer:jane@example.com"))
}

func TestLogin_InvalidInput(t *testing.T) {
	f := newUseCaseFixture(t)
	_, err := f.uc.Login(context.Background(), LoginInput{Role: "courier", Login: "a", Password: "b"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestLogoutAndRevoke(t *testing.T) {
	f := newUseCaseFixture(t)
	ctx := context.Background()

	pair, err := f.uc.Login(ctx, LoginInput{Role: domain.RoleCustomer, Login: "jane@example.com", Password: "s3cret"})
	require.NoError(t, err)
	other, err := f.uc.Login(ctx, LoginInput{Role: domain.RoleCustomer, Login: "jane@example.com", Password: "s3cret"})
	require.NoError(t, err)
	assert.Len(t, f.uc.Sessions("cust-1", domain.RoleCustomer), 2)

	assert.ErrorIs(t, f.uc.RevokeSession(ctx, "someone-else", domain.RoleCustomer, other.SessionID), domain.ErrSessionNotFound)
	require.NoError(t, f.uc.RevokeSession(ctx, "cust-1", domain.RoleCustomer, other.SessionID))
	assert.ErrorIs(t, f.uc.RevokeSession(ctx, "cust-1", domain.RoleCustomer, other.SessionID), domain.ErrSessionNotFound)

	f.uc.Logout(ctx, "cust-1", domain.RoleCustomer, pair.SessionID)
	assert.False(t, f.store.ValidateSession(pair.SessionID))
	_, cached := f.cache.Get(domain.RoleCustomer, "cust-1")
	assert.False(t, cached)
}

func TestRefresh_EmptyToken(t *testing.T) {
	f := newUseCaseFixture(t)
	_, err := f.uc.Refresh(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrTokenMalformed)
}
