package router

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	apiHandler "github.com/fastygo/courier-auth/api/handler"
	"github.com/fastygo/courier-auth/internal/middleware"
)

type Handlers struct {
	Auth   *apiHandler.AuthHandler
	Health *apiHandler.HealthHandler
}

// Options toggles optional endpoints.
type Options struct {
	// Metrics, when set, is served on /metrics.
	Metrics prometheus.Gatherer
}

func New(handlers Handlers, auth *middleware.Authenticator, opts Options) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if opts.Metrics != nil {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}),
		))
	}

	// Public auth routes
	v1 := r.Group("/api/v1/auth")
	v1.POST("/login", handlers.Auth.Login)
	v1.POST("/refresh", handlers.Auth.Refresh)

	// Protected routes
	authenticated := chain(auth.AnyRole(), auth.RefreshUserCache)
	v1.POST("/logout", auth.AnyRole()(handlers.Auth.Logout))
	v1.GET("/sessions", authenticated(handlers.Auth.Sessions))
	v1.DELETE("/sessions/{id}", authenticated(handlers.Auth.RevokeSession))
	v1.GET("/me", authenticated(handlers.Auth.Me))

	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		ctx.Error(`{"status":"error","code":"NOT_FOUND","error":"route not found"}`, fasthttp.StatusNotFound)
		ctx.Response.Header.SetContentType("application/json")
	}

	return r
}

// chain applies middlewares so the first one runs outermost.
func chain(mws ...middleware.Middleware) middleware.Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
