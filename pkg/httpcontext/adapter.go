package httpcontext

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/courier-auth/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
)

const RequestIDHeader = "X-Request-ID"

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout    time.Duration
	trustProxy bool
}

// NewAdapter constructs a new Adapter using the provided timeout. With
// trustProxy set, the client address is taken from X-Forwarded-For.
func NewAdapter(timeout time.Duration, trustProxy bool) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout:    timeout,
		trustProxy: trustProxy,
	}
}

// Attach creates a context with timeout derived from the adapter and enriches it with request metadata.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := RequestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)

	if ip := a.ClientIP(ctx); ip != "" {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, ip)
	}
	if ua := UserAgent(ctx); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}

	return stdCtx, cancel
}

// ClientIP returns the caller's address, or "" when unknown.
func (a *Adapter) ClientIP(ctx *fasthttp.RequestCtx) string {
	if a != nil && a.trustProxy {
		if fwd := string(ctx.Request.Header.Peek("X-Forwarded-For")); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	ip := ctx.RemoteIP()
	if ip == nil || ip.Equal(net.IPv4zero) {
		return ""
	}
	return ip.String()
}

// UserAgent returns the User-Agent header.
func UserAgent(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Request.Header.UserAgent())
}

// RequestID returns the inbound X-Request-ID, minting and echoing one when absent.
func RequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if id, ok := ctx.UserValue(RequestIDHeader).(string); ok {
		return id
	}
	id := strings.TrimSpace(string(ctx.Request.Header.Peek(RequestIDHeader)))
	if id == "" {
		id = uuid.NewString()
	}
	ctx.SetUserValue(RequestIDHeader, id)
	ctx.Response.Header.Set(RequestIDHeader, id)
	return id
}
