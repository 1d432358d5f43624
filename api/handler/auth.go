package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/courier-auth/api/transport"
	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/internal/middleware"
	"github.com/fastygo/courier-auth/pkg/httpcontext"
	authUC "github.com/fastygo/courier-auth/usecase/auth"
)

type AuthHandler struct {
	baseHandler
	uc *authUC.UseCase
}

func NewAuthHandler(uc *authUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Log in and open a session
// @Tags auth
// @Accept json
// @Produce json
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.LoginRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.respondError(ctx, stdCtx, domain.ErrInvalidPayload)
		return
	}

	pair, err := h.uc.Login(stdCtx, authUC.LoginInput{
		Role:     role,
		Login:    req.Login,
		Password: req.Password,
		Device:   middleware.DeviceFrom(ctx, h.adapter),
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, pair)
}

// @Summary Exchange a refresh token for a new access token
// @Tags auth
// @Accept json
// @Produce json
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.RefreshRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	pair, err := h.uc.Refresh(stdCtx, req.RefreshToken)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, pair)
}

// @Summary End the current session
// @Tags auth
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		h.respondError(ctx, stdCtx, domain.ErrNoToken)
		return
	}
	h.uc.Logout(stdCtx, identity.UserID, identity.Role, identity.SessionID)
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"message": "logged out"})
}

// @Summary List the caller's sessions
// @Tags auth
// @Produce json
// @Router /api/v1/auth/sessions [get]
func (h *AuthHandler) Sessions(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		h.respondError(ctx, stdCtx, domain.ErrNoToken)
		return
	}
	sessions := h.uc.Sessions(identity.UserID, identity.Role)
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(sessions, map[string]any{
		"count":   len(sessions),
		"current": identity.SessionID,
	}))
}

// @Summary Revoke one of the caller's sessions
// @Tags auth
// @Router /api/v1/auth/sessions/{id} [delete]
func (h *AuthHandler) RevokeSession(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		h.respondError(ctx, stdCtx, domain.ErrNoToken)
		return
	}
	sessionID, _ := ctx.UserValue("id").(string)
	if err := h.uc.RevokeSession(stdCtx, identity.UserID, identity.Role, sessionID); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"message": "session revoked"})
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(ctx *fasthttp.RequestCtx) {
	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		transport.WriteError(ctx, domain.ErrNoToken)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]any{
		"user":      identity.User,
		"role":      identity.Role,
		"sessionId": identity.SessionID,
	})
}
