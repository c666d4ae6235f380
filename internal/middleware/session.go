package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/api/transport"
	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/apiclient"
	"github.com/fastygo/deadlines/pkg/httpcontext"
	appLogger "github.com/fastygo/deadlines/pkg/logger"
	"github.com/fastygo/deadlines/repository"
)

const (
	userValueUser  = "session_user"
	userValueToken = "session_token"
)

// ProfileFetcher validates a token against the backend.
type ProfileFetcher interface {
	MeWithToken(ctx context.Context, token string) (*domain.User, error)
}

type GuardConfig struct {
	CookieName string
	LoginPath  string
	CacheTTL   time.Duration
	JWTSecret  string
	Timeout    time.Duration
}

// SessionGuard rejects requests without a session the backend accepts,
// before any protected handler runs.
type SessionGuard struct {
	cfg     GuardConfig
	backend ProfileFetcher
	cache   repository.SessionCache
	parser  *jwt.Parser
	logger  *zap.Logger
}

// NewSessionGuard builds the guard. cache may be nil.
func NewSessionGuard(cfg GuardConfig, backend ProfileFetcher, cache repository.SessionCache, logger *zap.Logger) *SessionGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "dl_session"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SessionGuard{
		cfg:     cfg,
		backend: backend,
		cache:   cache,
		parser:  jwt.NewParser(),
		logger:  logger,
	}
}

// Page guards an HTML route: unauthenticated visitors are redirected to the login page.
func (g *SessionGuard) Page(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		noStore(ctx)
		if err := g.authenticate(ctx); err != nil {
			if errors.Is(err, domain.ErrBackendUnavailable) {
				writeEnvelope(ctx, http.StatusServiceUnavailable, transport.NewError(string(domain.ErrCodeUnavailable), "backend unavailable", nil))
				return
			}
			ctx.Redirect(g.loginRedirect(ctx), fasthttp.StatusFound)
			return
		}
		next(ctx)
		noStore(ctx)
	}
}

// API guards a JSON route: unauthenticated callers get a 401 envelope.
func (g *SessionGuard) API(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		noStore(ctx)
		if err := g.authenticate(ctx); err != nil {
			if errors.Is(err, domain.ErrBackendUnavailable) {
				writeEnvelope(ctx, http.StatusServiceUnavailable, transport.NewError(string(domain.ErrCodeUnavailable), "backend unavailable", nil))
				return
			}
			writeEnvelope(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), err.Error(), nil))
			return
		}
		next(ctx)
		noStore(ctx)
	}
}

// Forget evicts a token from the session cache.
func (g *SessionGuard) Forget(ctx context.Context, token string) {
	if g.cache == nil || token == "" {
		return
	}
	if err := g.cache.Delete(ctx, token); err != nil {
		g.logger.Warn("session cache eviction failed", zap.Error(err))
	}
}

// Remember stores a freshly issued token so the next guarded request skips the backend.
func (g *SessionGuard) Remember(ctx context.Context, token string, user *domain.User) {
	if g.cache == nil || token == "" || user == nil {
		return
	}
	if err := g.cache.Save(ctx, token, user, g.cfg.CacheTTL); err != nil {
		g.logger.Warn("session cache write failed", zap.Error(err))
	}
}

func (g *SessionGuard) authenticate(ctx *fasthttp.RequestCtx) error {
	token := SessionToken(ctx, g.cfg.CookieName)
	if token == "" {
		return domain.ErrNotAuthenticated
	}
	if err := g.precheck(token); err != nil {
		g.logger.Debug("session token rejected locally", zap.Error(err))
		return domain.ErrSessionExpired
	}

	stdCtx, cancel := context.WithTimeout(context.Background(), g.cfg.Timeout)
	defer cancel()
	stdCtx = appLogger.ContextWithRequestID(stdCtx, httpcontext.RequestID(ctx))

	user, err := g.lookup(stdCtx, token)
	if err != nil {
		return err
	}
	ctx.SetUserValue(userValueUser, user)
	ctx.SetUserValue(userValueToken, token)
	return nil
}

func (g *SessionGuard) lookup(ctx context.Context, token string) (*domain.User, error) {
	if g.cache != nil {
		user, err := g.cache.Get(ctx, token)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			g.logger.Warn("session cache read failed", zap.Error(err))
		}
	}

	user, err := g.backend.MeWithToken(ctx, token)
	if err != nil {
		if apiclient.IsTransport(err) {
			return nil, domain.WrapError(domain.ErrCodeUnavailable, "backend unavailable", err)
		}
		if status := apiclient.StatusCode(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, domain.ErrSessionExpired
		}
		return nil, err
	}
	g.Remember(ctx, token, user)
	return user, nil
}

// precheck rejects JWTs that are malformed, expired, or (with a secret) badly signed.
// Opaque tokens pass untouched.
func (g *SessionGuard) precheck(token string) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if g.cfg.JWTSecret == "" {
		if _, _, err := g.parser.ParseUnverified(token, claims); err != nil {
			return err
		}
		return claims.Valid()
	}
	parsed, err := g.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(g.cfg.JWTSecret), nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return jwt.ErrTokenExpired
	}
	return nil
}

func (g *SessionGuard) loginRedirect(ctx *fasthttp.RequestCtx) string {
	next := string(ctx.Path())
	if query := ctx.URI().QueryString(); len(query) > 0 {
		next += "?" + string(query)
	}
	return g.cfg.LoginPath + "?next=" + url.QueryEscape(next)
}

// SessionToken reads the session cookie, falling back to a bearer header.
func SessionToken(ctx *fasthttp.RequestCtx, cookieName string) string {
	if cookie := ctx.Request.Header.Cookie(cookieName); len(cookie) > 0 {
		return string(cookie)
	}
	return extractToken(ctx)
}

// UserFrom returns the user the guard attached to the request.
func UserFrom(ctx *fasthttp.RequestCtx) (*domain.User, bool) {
	user, ok := ctx.UserValue(userValueUser).(*domain.User)
	return user, ok && user != nil
}

// TokenFrom returns the token the guard validated.
func TokenFrom(ctx *fasthttp.RequestCtx) string {
	token, _ := ctx.UserValue(userValueToken).(string)
	return token
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

func noStore(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-store")
}

func writeEnvelope(ctx *fasthttp.RequestCtx, status int, env transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(env.String())
}
