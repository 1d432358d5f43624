package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/internal/cache"
	"github.com/fastygo/courier-auth/internal/ratelimit"
	"github.com/fastygo/courier-auth/repository"
)

// LoginInput carries the credentials and client metadata of a login attempt.
type LoginInput struct {
	Role     domain.Role
	Login    string
	Password string
	Device   domain.DeviceInfo
}

type UseCase struct {
	users    repository.UserRepository
	sessions *SessionStore
	limiter  *ratelimit.Guard
	cache    *cache.UserCache
	logger   *zap.Logger
}

func New(
	users repository.UserRepository,
	sessions *SessionStore,
	limiter *ratelimit.Guard,
	userCache *cache.UserCache,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		cache:    userCache,
		logger:   logger,
	}
}

// Login checks credentials and opens a session.
func (uc *UseCase) Login(ctx context.Context, in LoginInput) (*domain.TokenPair, error) {
	if !in.Role.Valid() || strings.TrimSpace(in.Login) == "" || in.Password == "" {
		return nil, domain.ErrInvalidPayload
	}
	identifier := attemptKey(in.Role, in.Login)
	if err := uc.limiter.CheckLimit(identifier); err != nil {
		return nil, err
	}

	creds, err := uc.users.FindCredentials(ctx, strings.TrimSpace(in.Login), in.Role)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			uc.limiter.RecordFailure(identifier)
			return nil, domain.ErrInvalidCredentials
		}
		uc.logger.Error("credential lookup failed", zap.String("role", in.Role.String()), zap.Error(err))
		return nil, domain.WrapError(domain.ErrCodeInternal, "authentication service error", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(in.Password)) != nil {
		uc.limiter.RecordFailure(identifier)
		return nil, domain.ErrInvalidCredentials
	}
	if !creds.User.IsActive() {
		return nil, domain.ErrAccountInactive
	}
	uc.limiter.ClearFailures(identifier)

	created, err := uc.sessions.CreateSession(creds.User.ID, in.Role, in.Device)
	if err != nil {
		return nil, err
	}
	access, err := uc.sessions.IssueAccessToken(creds.User.ID, in.Role, created.SessionID)
	if err != nil {
		return nil, err
	}
	uc.cache.Put(in.Role, creds.User.ID, creds.User)

	uc.logger.Info("login succeeded",
		zap.String("user_id", creds.User.ID),
		zap.String("role", in.Role.String()),
		zap.String("session_id", created.SessionID))

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: created.RefreshToken,
		ExpiresIn:    uc.sessions.AccessTTL().String(),
		SessionID:    created.SessionID,
	}, nil
}

// Refresh exchanges a refresh credential for a new token pair.
func (uc *UseCase) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.ErrTokenMalformed
	}
	return uc.sessions.RefreshSession(ctx, refreshToken)
}

// Logout ends the caller's session and drops the cached identity record.
func (uc *UseCase) Logout(ctx context.Context, userID string, role domain.Role, sessionID string) {
	if sessionID != "" {
		uc.sessions.RemoveSession(ctx, sessionID)
	}
	uc.cache.Invalidate(role, userID)
}

// Sessions lists the caller's sessions.
func (uc *UseCase) Sessions(userID string, role domain.Role) []domain.SessionSummary {
	return uc.sessions.GetUserSessions(userID, role)
}

// RevokeSession removes one of the caller's own sessions.
func (uc *UseCase) RevokeSession(ctx context.Context, userID string, role domain.Role, sessionID string) error {
	sess, ok := uc.sessions.Session(sessionID)
	if !ok || sess.UserID != userID || sess.Role != role {
		return domain.ErrSessionNotFound
	}
	if !uc.sessions.RemoveSession(ctx, sessionID) {
		return domain.ErrSessionNotFound
	}
	return nil
}

func attemptKey(role domain.Role, login string) string {
	return role.String() + ":" + strings.ToLower(strings.TrimSpace(login))
}
