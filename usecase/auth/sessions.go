package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/internal/metrics"
	"github.com/fastygo/courier-auth/internal/token"
	"github.com/fastygo/courier-auth/repository"
)

const (
	DefaultAccessTTL = 15 * time.Minute
	RefreshTTL       = 7 * 24 * time.Hour
	MaxSessionAge    = 7 * 24 * time.Hour
	IdleTimeout      = 30 * 24 * time.Hour
	SweepInterval    = 15 * time.Minute

	sessionIDBytes = 32
)

// Refresh outcomes reported to metrics.
const (
	outcomeExisting  = "existing"
	outcomeRecovered = "recovered"
	outcomeLegacy    = "legacy"
	outcomeExpired   = "expired"
)

// SessionConfig tunes a SessionStore. Zero values fall back to the defaults.
type SessionConfig struct {
	AccessTTL     time.Duration
	SweepInterval time.Duration
	Recovery      RecoveryPolicy
	Now           func() time.Time
}

// CreatedSession is returned by CreateSession.
type CreatedSession struct {
	SessionID    string
	RefreshToken string
}

// purger is implemented by deny-lists that can drop entries for expired tokens.
type purger interface {
	Purge(ctx context.Context) (int, error)
}

// SessionStore is the in-memory registry of authenticated devices. It is the
// only owner of session lifecycle. State does not survive a restart; see
// RecoveryPolicy for how surviving refresh tokens are handled.
type SessionStore struct {
	codec       *token.Codec
	revocations repository.RevocationList
	metrics     *metrics.Auth
	logger      *zap.Logger
	cfg         SessionConfig
	cron        *cron.Cron
	sweepID     cron.EntryID

	mu        sync.Mutex
	sessions  map[string]*domain.Session
	byRefresh map[string]string
	// replaced maps a session id that is gone to its successor; an empty
	// successor marks an explicit logout.
	replaced  map[string]replacement
}

type replacement struct {
	sessionID string
	at        time.Time
}

// NewSessionStore builds a store. revocations and m may be nil.
func NewSessionStore(
	codec *token.Codec,
	revocations repository.RevocationList,
	m *metrics.Auth,
	logger *zap.Logger,
	cfg SessionConfig,
) *SessionStore {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = SweepInterval
	}
	if cfg.Recovery == nil {
		cfg.Recovery = AlwaysRecover
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SessionStore{
		codec:       codec,
		revocations: revocations,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		cron:        cron.New(cron.WithSeconds()),
		sessions:    make(map[string]*domain.Session),
		byRefresh:   make(map[string]string),
		replaced:    make(map[string]replacement),
	}

	s.sweepID = s.cron.Schedule(cron.Every(cfg.SweepInterval), cron.FuncJob(func() {
		removed := s.CleanupExpiredSessions()
		if removed > 0 {
			s.logger.Info("idle sessions swept", zap.Int("removed", removed))
		}
		s.purgeRevocations()
	}))

	return s
}

// Start launches the periodic idle sweep.
func (s *SessionStore) Start() {
	s.cron.Start()
	s.logger.Info("session sweep started", zap.Duration("interval", s.cfg.SweepInterval))
}

// Stop halts the sweep, waiting for a running pass or ctx, whichever ends first.
func (s *SessionStore) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("session sweep stopped")
}

// AccessTTL is the lifetime of access tokens minted by the store.
func (s *SessionStore) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

// CreateSession registers a new session and returns its id and signed refresh token.
func (s *SessionStore) CreateSession(userID string, role domain.Role, device domain.DeviceInfo) (*CreatedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.createLocked(userID, role, device)
	if err != nil {
		return nil, err
	}
	return &CreatedSession{SessionID: sess.ID, RefreshToken: sess.RefreshToken}, nil
}

// IssueAccessToken mints a short-lived access token bound to sessionID.
func (s *SessionStore) IssueAccessToken(userID string, role domain.Role, sessionID string) (string, error) {
	return s.codec.Issue(userID, role, token.IssueOptions{
		SessionID: sessionID,
		Type:      token.TypeAccess,
		TTL:       s.cfg.AccessTTL,
	})
}

// RefreshSession exchanges a refresh credential for a new access token.
// Failures are always domain.ErrSessionExpired: the caller must log in again.
func (s *SessionStore) RefreshSession(ctx context.Context, raw string) (*domain.TokenPair, error) {
	switch p := s.codec.Parse(raw).(type) {
	case token.Signed:
		return s.refreshSigned(ctx, p)
	case token.Opaque:
		return s.refreshLegacy(p)
	case token.Rejected:
		s.logger.Warn("refresh token rejected", zap.String("code", string(domain.CodeOf(p.Err))))
		s.metrics.Refreshed(outcomeExpired)
		return nil, domain.WrapError(domain.ErrCodeSessionExpired, domain.ErrSessionExpired.Message, p.Err)
	default:
		return nil, domain.ErrSessionExpired
	}
}

func (s *SessionStore) refreshSigned(ctx context.Context, p token.Signed) (*domain.TokenPair, error) {
	if err := s.checkRevoked(ctx, p.Claims); err != nil {
		s.metrics.Refreshed(outcomeExpired)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.lookupLocked(p.Raw); ok {
		return s.continueLocked(sess, false)
	}

	if !s.cfg.Recovery.Recover(p.Claims) {
		s.logger.Warn("refresh token has no session and recovery declined",
			zap.String("user_id", p.Claims.UserID),
			zap.String("role", p.Claims.Role.String()))
		s.metrics.Refreshed(outcomeExpired)
		return nil, domain.ErrSessionExpired
	}

	sess, err := s.createLocked(p.Claims.UserID, p.Claims.Role, domain.RecoveredDevice)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session lost, recreated from valid refresh token",
		zap.String("user_id", p.Claims.UserID),
		zap.String("role", p.Claims.Role.String()),
		zap.String("lost_session_id", p.Claims.SessionID),
		zap.String("session_id", sess.ID))
	s.metrics.Refreshed(outcomeRecovered)

	access, err := s.IssueAccessToken(sess.UserID, sess.Role, sess.ID)
	if err != nil {
		return nil, err
	}
	return s.pair(access, sess.RefreshToken), nil
}

func (s *SessionStore) refreshLegacy(p token.Opaque) (*domain.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookupLocked(p.Value)
	if !ok {
		s.logger.Warn("legacy refresh token not found in sessions")
		s.metrics.Refreshed(outcomeExpired)
		return nil, domain.ErrSessionExpired
	}
	return s.continueLocked(sess, true)
}

// continueLocked refreshes a stored session. Legacy sessions get their opaque
// refresh token replaced by a signed one.
func (s *SessionStore) continueLocked(sess *domain.Session, upgrade bool) (*domain.TokenPair, error) {
	now := s.cfg.Now()
	if sess.Age(now) > MaxSessionAge {
		s.deleteLocked(sess.ID)
		s.metrics.Refreshed(outcomeExpired)
		return nil, domain.ErrSessionExpired
	}

	access, err := s.IssueAccessToken(sess.UserID, sess.Role, sess.ID)
	if err != nil {
		return nil, err
	}

	if upgrade {
		refresh, err := s.issueRefresh(sess.UserID, sess.Role, sess.ID)
		if err != nil {
			return nil, err
		}
		delete(s.byRefresh, sess.RefreshToken)
		sess.RefreshToken = refresh
		s.byRefresh[refresh] = sess.ID
		s.metrics.Refreshed(outcomeLegacy)
	} else {
		s.metrics.Refreshed(outcomeExisting)
	}
	sess.LastActivity = now

	return s.pair(access, sess.RefreshToken), nil
}

func (s *SessionStore) checkRevoked(ctx context.Context, claims *token.Claims) error {
	if s.revocations == nil {
		return nil
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error("revocation lookup failed", zap.Error(err))
		return domain.WrapError(domain.ErrCodeSessionExpired, domain.ErrSessionExpired.Message, err)
	}
	if revoked {
		s.logger.Warn("revoked refresh token presented", zap.String("user_id", claims.UserID))
		return domain.ErrSessionExpired
	}
	return nil
}

// GetUserSessions lists the sessions of a user, oldest first, without token material.
func (s *SessionStore) GetUserSessions(userID string, role domain.Role) []domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SessionSummary, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Role == role {
			out = append(out, sess.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Session returns a copy of the stored session.
func (s *SessionStore) Session(sessionID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return *sess, true
}

// ValidateSession reports whether sessionID is held by the store.
func (s *SessionStore) ValidateSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// ResumeSession resolves the session an access token is bound to. A session
// lost to a restart is replaced once per lost id, subject to the recovery
// policy; later requests carrying the same token reuse the replacement.
// Tokens of explicitly removed sessions fail with domain.ErrSessionExpired.
func (s *SessionStore) ResumeSession(claims *token.Claims, device domain.DeviceInfo) (string, error) {
	if claims.SessionID == "" {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[claims.SessionID]; ok {
		return claims.SessionID, nil
	}
	if r, ok := s.replaced[claims.SessionID]; ok {
		if r.sessionID == "" {
			return "", domain.ErrSessionExpired
		}
		if _, live := s.sessions[r.sessionID]; live {
			return r.sessionID, nil
		}
		if next, ok := s.replaced[r.sessionID]; ok && next.sessionID == "" {
			return "", domain.ErrSessionExpired
		}
	}
	if !s.cfg.Recovery.Recover(claims) {
		return "", domain.ErrSessionExpired
	}

	sess, err := s.createLocked(claims.UserID, claims.Role, device)
	if err != nil {
		return "", err
	}
	s.replaced[claims.SessionID] = replacement{sessionID: sess.ID, at: s.cfg.Now()}
	s.logger.Info("session not found, created new session for existing token",
		zap.String("user_id", claims.UserID),
		zap.String("role", claims.Role.String()),
		zap.String("lost_session_id", claims.SessionID),
		zap.String("session_id", sess.ID))
	s.metrics.Refreshed(outcomeRecovered)
	return sess.ID, nil
}

// RemoveSession deletes a session. It returns false when the session was
// already gone. With a deny-list configured, the session's refresh token is
// revoked until it expires.
func (s *SessionStore) RemoveSession(ctx context.Context, sessionID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		s.deleteLocked(sessionID)
		s.replaced[sessionID] = replacement{at: s.cfg.Now()}
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if s.revocations != nil {
		s.revoke(ctx, sess.RefreshToken)
	}
	return true
}

func (s *SessionStore) revoke(ctx context.Context, refresh string) {
	claims, err := s.codec.Verify(refresh)
	if err != nil {
		// expired or legacy tokens can no longer be replayed through recovery
		return
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.Expiry()); err != nil {
		s.logger.Error("failed to revoke refresh token", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}

// CleanupExpiredSessions removes sessions idle for longer than IdleTimeout and
// returns how many were removed.
func (s *SessionStore) CleanupExpiredSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	var removed int
	for id, sess := range s.sessions {
		if sess.Idle(now) > IdleTimeout {
			s.deleteLocked(id)
			s.logger.Debug("cleaned up expired session", zap.String("session_id", id))
			removed++
		}
	}
	// access tokens naming a replaced id expire within one access lifetime
	for id, r := range s.replaced {
		if now.Sub(r.at) > s.cfg.AccessTTL {
			delete(s.replaced, id)
		}
	}
	s.metrics.Swept(removed)
	return removed
}

// Count returns the number of held sessions.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) purgeRevocations() {
	p, ok := s.revocations.(purger)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepInterval)
	defer cancel()
	if n, err := p.Purge(ctx); err != nil {
		s.logger.Warn("revocation purge failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired revocations purged", zap.Int("removed", n))
	}
}

func (s *SessionStore) createLocked(userID string, role domain.Role, device domain.DeviceInfo) (*domain.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefresh(userID, role, id)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	sess := &domain.Session{
		ID:           id,
		UserID:       userID,
		Role:         role,
		Device:       device,
		RefreshToken: refresh,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[id] = sess
	s.byRefresh[refresh] = id
	s.metrics.SetActiveSessions(len(s.sessions))
	return sess, nil
}

func (s *SessionStore) lookupLocked(refresh string) (*domain.Session, bool) {
	id, ok := s.byRefresh[refresh]
	if !ok {
		return nil, false
	}
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *SessionStore) deleteLocked(sessionID string) {
	if sess, ok := s.sessions[sessionID]; ok {
		delete(s.byRefresh, sess.RefreshToken)
		delete(s.sessions, sessionID)
	}
	s.metrics.SetActiveSessions(len(s.sessions))
}

func (s *SessionStore) issueRefresh(userID string, role domain.Role, sessionID string) (string, error) {
	return s.codec.Issue(userID, role, token.IssueOptions{
		SessionID: sessionID,
		Type:      token.TypeRefresh,
		TTL:       RefreshTTL,
	})
}

func (s *SessionStore) pair(access, refresh string) *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.cfg.AccessTTL.String(),
	}
}

// newSessionID returns 32 random bytes, hex encoded.
func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
