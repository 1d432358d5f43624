package router

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	apiHandler "github.com/fastygo/courier-auth/api/handler"
	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/internal/cache"
	"github.com/fastygo/courier-auth/internal/infrastructure/monitor"
	"github.com/fastygo/courier-auth/internal/metrics"
	"github.com/fastygo/courier-auth/internal/middleware"
	"github.com/fastygo/courier-auth/internal/ratelimit"
	"github.com/fastygo/courier-auth/internal/token"
	"github.com/fastygo/courier-auth/pkg/httpcontext"
	authUC "github.com/fastygo/courier-auth/usecase/auth"
)

type memoryDirectory struct {
	creds map[string]*domain.Credentials
}

func (d *memoryDirectory) FindByID(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	for _, c := range d.creds {
		if c.User.ID == id && c.User.Role == role {
			u := *c.User
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *memoryDirectory) FindCredentials(_ context.Context, login string, role domain.Role) (*domain.Credentials, error) {
	c, ok := d.creds[role.String()+":"+strings.ToLower(login)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return c, nil
}

type response struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Meta   map[string]any  `json:"meta"`
}

type server struct {
	t       *testing.T
	handler fasthttp.RequestHandler
}

func (s *server) do(method, path, body, bearer string) (int, response, []byte) {
	s.t.Helper()
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	req.Header.SetUserAgent("courier-app/3.1")
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	if bearer != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+bearer)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(req, &net.TCPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 51000}, nil)
	s.handler(&ctx)

	raw := append([]byte(nil), ctx.Response.Body()...)
	var out response
	if strings.HasPrefix(string(ctx.Response.Header.ContentType()), "application/json") {
		require.NoError(s.t, json.Unmarshal(raw, &out))
	}
	return ctx.Response.StatusCode(), out, raw
}

func newServer(t *testing.T) *server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &memoryDirectory{creds: map[string]*domain.Credentials{
		"customer:jane@example.com": {
			User:         &domain.User{ID: "cust-1", Name: "Jane", Email: "jane@example.com", Role: domain.RoleCustomer, Enabled: true},
			PasswordHash: string(hash),
		},
	}}

	codec, err := token.New("router-secret")
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	authMetrics := metrics.New(metrics.Config{Registry: registry})
	userCache := cache.NewUserCache(cache.Config{})
	sessions := authUC.NewSessionStore(codec, nil, authMetrics, nil, authUC.SessionConfig{})
	uc := authUC.New(users, sessions, ratelimit.New(ratelimit.Config{}), userCache, nil)

	mon := monitor.New([]monitor.Probe{{
		Name:     "postgresql",
		Required: true,
		Check:    func(context.Context) error { return nil },
	}}, nil, time.Minute, nil)
	mon.Refresh()

	adapter := httpcontext.NewAdapter(time.Second, false)
	auth := middleware.NewAuthenticator(middleware.Config{
		Codec:    codec,
		Users:    users,
		Cache:    userCache,
		Sessions: sessions,
		Adapter:  adapter,
		Metrics:  authMetrics,
	})

	r := New(Handlers{
		Auth:   apiHandler.NewAuthHandler(uc, adapter, nil),
		Health: apiHandler.NewHealthHandler(mon, adapter, nil),
	}, auth, Options{Metrics: registry})

	return &server{t: t, handler: r.Handler}
}

type pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	SessionID    string `json:"sessionId"`
}

func (s *server) login(t *testing.T) pair {
	t.Helper()
	status, res, _ := s.do(http.MethodPost, "/api/v1/auth/login",
		`{"role":"customer","login":"jane@example.com","password":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, status)
	var p pair
	require.NoError(t, json.Unmarshal(res.Data, &p))
	return p
}

func TestLoginValidation(t *testing.T) {
	s := newServer(t)

	status, res, _ := s.do(http.MethodPost, "/api/v1/auth/login", `{"role":"courier","login":"a","password":"b"}`, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID", res.Code)

	status, res, _ = s.do(http.MethodPost, "/api/v1/auth/login", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID", res.Code)

	status, res, _ = s.do(http.MethodPost, "/api/v1/auth/login",
		`{"role":"customer","login":"jane@example.com","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", res.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newServer(t)
	body := `{"role":"customer","login":"jane@example.com","password":"nope"}`
	for i := 0; i < ratelimit.DefaultMaxAttempts; i++ {
		s.do(http.MethodPost, "/api/v1/auth/login", body, "")
	}

	status, res, _ := s.do(http.MethodPost, "/api/v1/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", res.Code)
	assert.Equal(t, float64(15), res.Meta["remainingMinutes"])
}

func TestSessionLifecycle(t *testing.T) {
	s := newServer(t)
	first := s.login(t)
	assert.NotEmpty(t, first.AccessToken)
	assert.Equal(t, "15m0s", first.ExpiresIn)

	status, res, _ := s.do(http.MethodGet, "/api/v1/auth/me", "", first.AccessToken)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		User      domain.User `json:"user"`
		Role      string      `json:"role"`
		SessionID string      `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &me))
	assert.Equal(t, "cust-1", me.User.ID)
	assert.Equal(t, "customer", me.Role)
	assert.Equal(t, first.SessionID, me.SessionID)

	status, res, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"`+first.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, status)
	var refreshed pair
	require.NoError(t, json.Unmarshal(res.Data, &refreshed))
	assert.Equal(t, first.RefreshToken, refreshed.RefreshToken)
	assert.NotEqual(t, first.AccessToken, refreshed.AccessToken)

	second := s.login(t)
	status, res, _ = s.do(http.MethodGet, "/api/v1/auth/sessions", "", first.AccessToken)
	require.Equal(t, http.StatusOK, status)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &listed))
	assert.Len(t, listed, 2)
	assert.Equal(t, first.SessionID, res.Meta["current"])
	for _, sess := range listed {
		assert.NotContains(t, sess, "refreshToken")
	}

	status, _, _ = s.do(http.MethodDelete, "/api/v1/auth/sessions/"+second.SessionID, "", first.AccessToken)
	assert.Equal(t, http.StatusOK, status)
	status, res, _ = s.do(http.MethodDelete, "/api/v1/auth/sessions/"+second.SessionID, "", first.AccessToken)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "SESSION_NOT_FOUND", res.Code)

	status, _, _ = s.do(http.MethodPost, "/api/v1/auth/logout", "", first.AccessToken)
	assert.Equal(t, http.StatusOK, status)

	status, res, _ = s.do(http.MethodGet, "/api/v1/auth/me", "", first.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SESSION_EXPIRED", res.Code)
}

func TestRefreshErrors(t *testing.T) {
	s := newServer(t)

	status, res, _ := s.do(http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":""}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", res.Code)

	status, res, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", `{}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", res.Code)

	status, res, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"legacy-opaque-value"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SESSION_EXPIRED", res.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newServer(t)

	status, res, _ := s.do(http.MethodGet, "/api/v1/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "NO_TOKEN", res.Code)
	assert.Equal(t, "error", res.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	status, res, _ := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", res.Status)

	s.do(http.MethodGet, "/api/v1/auth/me", "", "")
	status, _, body := s.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `courier_auth_rejections_total{code="NO_TOKEN"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	status, res, _ := s.do(http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", res.Code)
}
