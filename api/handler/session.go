package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/api/transport"
	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/middleware"
	"github.com/fastygo/deadlines/pkg/httpcontext"
)

// Authenticator is the part of the API client the web session endpoints use.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*domain.AuthResult, error)
	Register(ctx context.Context, email, password, fullName string) (*domain.AuthResult, error)
	Revoke(ctx context.Context, token string) error
}

// SessionStore caches accepted tokens; middleware.SessionGuard satisfies it.
type SessionStore interface {
	Remember(ctx context.Context, token string, user *domain.User)
	Forget(ctx context.Context, token string)
}

type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// SessionHandler backs the browser sign-in flow with an HttpOnly cookie.
type SessionHandler struct {
	baseHandler
	auth     Authenticator
	sessions SessionStore
	cookie   CookieConfig
}

func NewSessionHandler(auth Authenticator, sessions SessionStore, cookie CookieConfig, adapter *httpcontext.Adapter, logger *zap.Logger) *SessionHandler {
	if cookie.Name == "" {
		cookie.Name = "dl_session"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = 7 * 24 * time.Hour
	}
	return &SessionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		auth:        auth,
		sessions:    sessions,
		cookie:      cookie,
	}
}

// @Summary Sign in and start a browser session
// @Tags session
// @Router /session/login [post]
func (h *SessionHandler) Login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || !req.Valid() {
		h.invalidPayload(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.auth.Login(stdCtx, req.Email, req.Password)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.startSession(stdCtx, ctx, res)
	h.respondSuccess(ctx, http.StatusOK, transport.SessionPayload{User: res.User, SessionEstablished: true})
}

// @Summary Create an account
// @Tags session
// @Router /session/register [post]
func (h *SessionHandler) Register(ctx *fasthttp.RequestCtx) {
	var req transport.RegisterRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || !req.Valid() {
		h.invalidPayload(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.auth.Register(stdCtx, req.Email, req.Password, req.FullName)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	established := res.Token() != ""
	if established {
		h.startSession(stdCtx, ctx, res)
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.SessionPayload{
		User:               res.User,
		SessionEstablished: established,
		Message:            res.Message,
	})
}

// @Summary End the browser session
// @Tags session
// @Router /session/logout [post]
func (h *SessionHandler) Logout(ctx *fasthttp.RequestCtx) {
	token := middleware.SessionToken(ctx, h.cookie.Name)
	h.clearCookie(ctx)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if token != "" {
		if h.sessions != nil {
			h.sessions.Forget(stdCtx, token)
		}
		go h.revoke(context.WithoutCancel(stdCtx), token)
	}
	h.respondSuccess(ctx, http.StatusOK, transport.SessionPayload{})
}

// @Summary Current user
// @Tags session
// @Router /session/me [get]
func (h *SessionHandler) Me(ctx *fasthttp.RequestCtx) {
	user, ok := middleware.UserFrom(ctx)
	if !ok {
		h.respondError(ctx, domain.ErrNotAuthenticated)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.SessionPayload{User: user, SessionEstablished: true})
}

func (h *SessionHandler) startSession(stdCtx context.Context, ctx *fasthttp.RequestCtx, res *domain.AuthResult) {
	token := res.Token()
	h.setCookie(ctx, token, h.cookie.MaxAge)
	if h.sessions != nil {
		h.sessions.Remember(stdCtx, token, res.User)
	}
}

func (h *SessionHandler) revoke(ctx context.Context, token string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.auth.Revoke(ctx, token); err != nil {
		h.logger.Debug("backend sign-out failed", zap.Error(err))
	}
}

func (h *SessionHandler) setCookie(ctx *fasthttp.RequestCtx, value string, maxAge time.Duration) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)

	cookie.SetKey(h.cookie.Name)
	cookie.SetValue(value)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSecure(h.cookie.Secure)
	cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if maxAge > 0 {
		cookie.SetMaxAge(int(maxAge.Seconds()))
	} else {
		cookie.SetExpire(fasthttp.CookieExpireDelete)
	}
	ctx.Response.Header.SetCookie(cookie)
}

func (h *SessionHandler) clearCookie(ctx *fasthttp.RequestCtx) {
	h.setCookie(ctx, "", 0)
}
