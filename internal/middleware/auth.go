package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/courier-auth/api/transport"
	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/internal/cache"
	"github.com/fastygo/courier-auth/internal/metrics"
	"github.com/fastygo/courier-auth/internal/token"
	"github.com/fastygo/courier-auth/pkg/httpcontext"
	"github.com/fastygo/courier-auth/repository"
)

const bearerPrefix = "Bearer "

const identityKey = "auth.identity"

// Middleware wraps a handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// Identity is the authenticated caller attached to the request.
type Identity struct {
	UserID          string
	Role            domain.Role
	SessionID       string
	User            *domain.User
	IsAdmin         bool
	IsDeliveryAgent bool
	IsCustomer      bool
}

// IdentityFrom returns the identity attached by Authenticate, if any.
func IdentityFrom(ctx *fasthttp.RequestCtx) (*Identity, bool) {
	id, ok := ctx.UserValue(identityKey).(*Identity)
	return id, ok && id != nil
}

// Options tune a gate.
type Options struct {
	// Optional lets requests without a bearer header through unauthenticated.
	// A header that is present must still verify.
	Optional      bool
	// AllowInactive skips the account status check.
	AllowInactive bool
}

// SessionResumer binds an access token to a live session.
type SessionResumer interface {
	ResumeSession(claims *token.Claims, device domain.DeviceInfo) (string, error)
}

// Authenticator builds the role gates placed in front of protected routes.
type Authenticator struct {
	codec    *token.Codec
	users    repository.UserRepository
	cache    *cache.UserCache
	sessions SessionResumer
	adapter  *httpcontext.Adapter
	metrics  *metrics.Auth
	logger   *zap.Logger
	timeout  time.Duration
}

// Config wires an Authenticator. Sessions, Adapter and Metrics may be nil.
type Config struct {
	Codec    *token.Codec
	Users    repository.UserRepository
	Cache    *cache.UserCache
	Sessions SessionResumer
	Adapter  *httpcontext.Adapter
	Metrics  *metrics.Auth
	Logger   *zap.Logger

	// LookupTimeout bounds the user directory query; defaults to 3s.
	LookupTimeout time.Duration
}

func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	return &Authenticator{
		codec:    cfg.Codec,
		users:    cfg.Users,
		cache:    cfg.Cache,
		sessions: cfg.Sessions,
		adapter:  cfg.Adapter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		timeout:  cfg.LookupTimeout,
	}
}

// Authenticate returns a gate admitting callers whose role is in roles. An
// empty roles list admits every authenticated caller.
func (a *Authenticator) Authenticate(roles []domain.Role, opts Options) Middleware {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			raw, ok := bearerToken(ctx)
			if !ok {
				if opts.Optional {
					next(ctx)
					return
				}
				a.reject(ctx, domain.ErrNoToken)
				return
			}

			identity, err := a.identify(ctx, raw, allowed, opts)
			if err != nil {
				a.reject(ctx, err)
				return
			}

			ctx.SetUserValue(identityKey, identity)
			next(ctx)
		}
	}
}

func (a *Authenticator) identify(ctx *fasthttp.RequestCtx, raw string, allowed map[domain.Role]struct{}, opts Options) (*Identity, error) {
	claims, err := a.codec.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Type != token.TypeAccess {
		return nil, domain.ErrTokenMalformed
	}
	if _, ok := allowed[claims.Role]; len(allowed) > 0 && !ok {
		return nil, domain.ErrInsufficientPrivileges
	}

	user, err := a.resolveUser(ctx, claims.UserID, claims.Role)
	if err != nil {
		return nil, err
	}
	if !opts.AllowInactive && !user.IsActive() {
		return nil, domain.ErrAccountInactive
	}

	sessionID := claims.SessionID
	if a.sessions != nil && sessionID != "" {
		sessionID, err = a.sessions.ResumeSession(claims, DeviceFrom(ctx, a.adapter))
		if err != nil {
			return nil, err
		}
	}

	snapshot := *user
	return &Identity{
		UserID:          claims.UserID,
		Role:            claims.Role,
		SessionID:       sessionID,
		User:            &snapshot,
		IsAdmin:         claims.Role == domain.RoleAdmin,
		IsDeliveryAgent: claims.Role == domain.RoleDeliveryAgent,
		IsCustomer:      claims.Role == domain.RoleCustomer,
	}, nil
}

// resolveUser consults the cache before the directory. Lookup failures are
// reported to the caller as USER_NOT_FOUND.
func (a *Authenticator) resolveUser(ctx *fasthttp.RequestCtx, id string, role domain.Role) (*domain.User, error) {
	if user, ok := a.cache.Get(role, id); ok {
		a.metrics.CacheLookup(true)
		return user, nil
	}
	a.metrics.CacheLookup(false)

	lookupCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	user, err := a.users.FindByID(lookupCtx, id, role)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			a.logger.Error("user lookup failed",
				zap.String("request_id", httpcontext.RequestID(ctx)),
				zap.String("user_id", id),
				zap.String("role", role.String()),
				zap.Error(err))
		}
		a.cache.Invalidate(role, id)
		return nil, domain.ErrUserNotFound
	}

	a.cache.Put(role, id, user)
	return user, nil
}

func (a *Authenticator) reject(ctx *fasthttp.RequestCtx, err error) {
	code := domain.CodeOf(err)
	a.metrics.Rejected(string(code))
	a.logger.Debug("request rejected",
		zap.String("request_id", httpcontext.RequestID(ctx)),
		zap.ByteString("path", ctx.Path()),
		zap.String("code", string(code)))
	transport.WriteError(ctx, err)
}

// RefreshUserCache re-stores the caller's record after the handler ran, so an
// active user keeps a warm entry.
func (a *Authenticator) RefreshUserCache(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		if identity, ok := IdentityFrom(ctx); ok {
			a.cache.Put(identity.Role, identity.UserID, identity.User)
		}
	}
}

// AdminOnly admits administrators.
func (a *Authenticator) AdminOnly() Middleware {
	return a.Authenticate([]domain.Role{domain.RoleAdmin}, Options{})
}

// DeliveryAgentOnly admits delivery agents.
func (a *Authenticator) DeliveryAgentOnly() Middleware {
	return a.Authenticate([]domain.Role{domain.RoleDeliveryAgent}, Options{})
}

// CustomerOnly admits customers.
func (a *Authenticator) CustomerOnly() Middleware {
	return a.Authenticate([]domain.Role{domain.RoleCustomer}, Options{})
}

// Staff admits administrators and delivery agents.
func (a *Authenticator) Staff() Middleware {
	return a.Authenticate([]domain.Role{domain.RoleAdmin, domain.RoleDeliveryAgent}, Options{})
}

// AdminOrCustomer admits administrators and customers.
func (a *Authenticator) AdminOrCustomer() Middleware {
	return a.Authenticate([]domain.Role{domain.RoleAdmin, domain.RoleCustomer}, Options{})
}

// AnyRole admits any authenticated caller.
func (a *Authenticator) AnyRole() Middleware {
	return a.Authenticate(domain.Roles, Options{})
}

// Optional attaches an identity when a token is sent and passes anonymous requests through.
func (a *Authenticator) Optional() Middleware {
	return a.Authenticate(domain.Roles, Options{Optional: true})
}

// DeviceFrom describes the calling client.
func DeviceFrom(ctx *fasthttp.RequestCtx, adapter *httpcontext.Adapter) domain.DeviceInfo {
	device := domain.DeviceInfo{
		UserAgent: httpcontext.UserAgent(ctx),
		IP:        adapter.ClientIP(ctx),
	}
	if device.UserAgent == "" {
		device.UserAgent = "unknown"
	}
	if device.IP == "" {
		device.IP = "unknown"
	}
	return device
}

func bearerToken(ctx *fasthttp.RequestCtx) (string, bool) {
	header := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}
