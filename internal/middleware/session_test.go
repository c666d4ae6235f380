package middleware

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/apiclient"
)

type stubFetcher struct {
	mu    sync.Mutex
	user  *domain.User
	err   error
	calls int
}

func (s *stubFetcher) MeWithToken(context.Context, string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.user, s.err
}

type memCache struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemCache() *memCache {
	return &memCache{users: make(map[string]*domain.User)}
}

func (c *memCache) Get(_ context.Context, token string) (*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[token]; ok {
		return u, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (c *memCache) Save(_ context.Context, token string, user *domain.User, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[token] = user
	return nil
}

func (c *memCache) Delete(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, token)
	return nil
}

func requestCtx(uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.SetRequestURI(uri)
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4000}, nil)
	return ctx
}

func okHandler(ctx *fasthttp.RequestCtx) {
	user, _ := UserFrom(ctx)
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("hello " + user.ID + " " + TokenFrom(ctx))
}

func signed(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

var alice = &domain.User{ID: "u1", Email: "alice@example.com"}

func TestSessionGuard_PageRedirectsWithoutSession(t *testing.T) {
	fetcher := &stubFetcher{user: alice}
	guard := NewSessionGuard(GuardConfig{}, fetcher, nil, nil)

	ctx := requestCtx("http://gateway.test/dashboard?tab=1")
	guard.Page(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusFound, ctx.Response.StatusCode())
	location := string(ctx.Response.Header.Peek("Location"))
	require.Contains(t, location, "/login?next=")
	require.Contains(t, location, "dashboard")
	require.Equal(t, "no-store", string(ctx.Response.Header.Peek("Cache-Control")))
	require.Zero(t, fetcher.calls)
}

func TestSessionGuard_APIRejectsWithoutSession(t *testing.T) {
	guard := NewSessionGuard(GuardConfig{}, &stubFetcher{user: alice}, nil, nil)

	ctx := requestCtx("http://gateway.test/session/me")
	guard.API(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	require.JSONEq(t, `{"status":"error","code":"UNAUTHORIZED","error":"not authenticated"}`, string(ctx.Response.Body()))
}

func TestSessionGuard_CookieSessionPasses(t *testing.T) {
	fetcher := &stubFetcher{user: alice}
	guard := NewSessionGuard(GuardConfig{CookieName: "sid"}, fetcher, nil, nil)

	ctx := requestCtx("http://gateway.test/deadlines")
	ctx.Request.Header.SetCookie("sid", "opaque-token")
	guard.Page(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	require.Equal(t, "hello u1 opaque-token", string(ctx.Response.Body()))
	require.Equal(t, "no-store", string(ctx.Response.Header.Peek("Cache-Control")))
}

func TestSessionGuard_BearerHeaderPasses(t *testing.T) {
	guard := NewSessionGuard(GuardConfig{}, &stubFetcher{user: alice}, nil, nil)

	ctx := requestCtx("http://gateway.test/session/me")
	ctx.Request.Header.Set("Authorization", "Bearer opaque-token")
	guard.API(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestSessionGuard_BackendRejectsToken(t *testing.T) {
	fetcher := &stubFetcher{err: &apiclient.APIError{StatusCode: 401}}
	guard := NewSessionGuard(GuardConfig{}, fetcher, nil, nil)

	ctx := requestCtx("http://gateway.test/settings")
	ctx.Request.Header.SetCookie("dl_session", "revoked")
	guard.Page(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusFound, ctx.Response.StatusCode())
	require.Equal(t, 1, fetcher.calls)
}

func TestSessionGuard_BackendUnavailable(t *testing.T) {
	fetcher := &stubFetcher{err: &apiclient.TransportError{Err: errors.New("connection refused")}}
	guard := NewSessionGuard(GuardConfig{}, fetcher, nil, nil)

	ctx := requestCtx("http://gateway.test/session/me")
	ctx.Request.Header.SetCookie("dl_session", "tok")
	guard.API(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}

func TestSessionGuard_ExpiredJWTRejectedLocally(t *testing.T) {
	fetcher := &stubFetcher{user: alice}
	guard := NewSessionGuard(GuardConfig{}, fetcher, nil, nil)

	ctx := requestCtx("http://gateway.test/session/me")
	ctx.Request.Header.SetCookie("dl_session", signed(t, "any", time.Now().Add(-time.Hour)))
	guard.API(okHandler)(ctx)

	require.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	require.Zero(t, fetcher.calls)
}

func TestSessionGuard_JWTSignatureVerifiedWithSecret(t *testing.T) {
	fetcher := &stubFetcher{user: alice}
	guard := NewSessionGuard(GuardConfig{JWTSecret: "right"}, fetcher, nil, nil)

	forged := requestCtx("http://gateway.test/session/me")
	forged.Request.Header.SetCookie("dl_session", signed(t, "wrong", time.Now().Add(time.Hour)))
	guard.API(okHandler)(forged)
	require.Equal(t, fasthttp.StatusUnauthorized, forged.Response.StatusCode())
	require.Zero(t, fetcher.calls)

	valid := requestCtx("http://gateway.test/session/me")
	valid.Request.Header.SetCookie("dl_session", signed(t, "right", time.Now().Add(time.Hour)))
	guard.API(okHandler)(valid)
	require.Equal(t, fasthttp.StatusOK, valid.Response.StatusCode())
	require.Equal(t, 1, fetcher.calls)
}

func TestSessionGuard_CacheAvoidsBackendRoundTrip(t *testing.T) {
	fetcher := &stubFetcher{user: alice}
	cache := newMemCache()
	guard := NewSessionGuard(GuardConfig{CacheTTL: time.Minute}, fetcher, cache, nil)

	for i := 0; i < 3; i++ {
		ctx := requestCtx("http://gateway.test/session/me")
		ctx.Request.Header.SetCookie("dl_session", "tok")
		guard.API(okHandler)(ctx)
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	}
	require.Equal(t, 1, fetcher.calls)

	guard.Forget(context.Background(), "tok")
	ctx := requestCtx("http://gateway.test/session/me")
	ctx.Request.Header.SetCookie("dl_session", "tok")
	guard.API(okHandler)(ctx)
	require.Equal(t, 2, fetcher.calls)
}
