package handler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/apiclient"
	"github.com/fastygo/deadlines/internal/infrastructure/monitor"
)

type stubAuth struct {
	loginRes    *domain.AuthResult
	loginErr    error
	registerRes *domain.AuthResult

	mu      sync.Mutex
	revoked []string
	done    chan struct{}
}

func (s *stubAuth) Login(context.Context, string, string) (*domain.AuthResult, error) {
	return s.loginRes, s.loginErr
}

func (s *stubAuth) Register(context.Context, string, string, string) (*domain.AuthResult, error) {
	return s.registerRes, nil
}

func (s *stubAuth) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	s.revoked = append(s.revoked, token)
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	return nil
}

type stubSessions struct {
	remembered map[string]*domain.User
	forgotten  []string
}

func (s *stubSessions) Remember(_ context.Context, token string, user *domain.User) {
	if s.remembered == nil {
		s.remembered = make(map[string]*domain.User)
	}
	s.remembered[token] = user
}

func (s *stubSessions) Forget(_ context.Context, token string) {
	s.forgotten = append(s.forgotten, token)
}

func jsonCtx(method, uri, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(uri)
	ctx.Request.Header.SetMethod(method)
	ctx.Request.Header.SetContentType("application/json")
	ctx.Request.SetBodyString(body)
	return ctx
}

func responseCookie(t *testing.T, ctx *fasthttp.RequestCtx, name string) *fasthttp.Cookie {
	t.Helper()
	cookie := &fasthttp.Cookie{}
	cookie.SetKey(name)
	require.True(t, ctx.Response.Header.Cookie(cookie), "cookie %s not set", name)
	return cookie
}

var bob = &domain.User{ID: "u7", Email: "bob@example.com"}

func TestSessionHandler_LoginSetsCookie(t *testing.T) {
	auth := &stubAuth{loginRes: &domain.AuthResult{AccessToken: "tok", User: bob}}
	sessions := &stubSessions{}
	h := NewSessionHandler(auth, sessions, CookieConfig{Name: "sid", Secure: true, MaxAge: time.Hour}, nil, nil)

	ctx := jsonCtx("POST", "/session/login", `{"email":"bob@example.com","password":"pw"}`)
	h.Login(ctx)

	require.Equal(t, 200, ctx.Response.StatusCode())
	require.JSONEq(t, `{"status":"success","data":{"user":{"id":"u7","email":"bob@example.com","is_active":false,"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"},"session_established":true}}`,
		string(ctx.Response.Body()))

	cookie := responseCookie(t, ctx, "sid")
	require.Equal(t, "tok", string(cookie.Value()))
	require.True(t, cookie.HTTPOnly())
	require.True(t, cookie.Secure())
	require.Equal(t, 3600, cookie.MaxAge())
	require.Equal(t, bob, sessions.remembered["tok"])
}

func TestSessionHandler_LoginRejected(t *testing.T) {
	auth := &stubAuth{loginErr: &apiclient.APIError{StatusCode: 401, Detail: "Invalid login credentials"}}
	h := NewSessionHandler(auth, nil, CookieConfig{}, nil, nil)

	ctx := jsonCtx("POST", "/session/login", `{"email":"bob@example.com","password":"bad"}`)
	h.Login(ctx)

	require.Equal(t, 401, ctx.Response.StatusCode())
	require.JSONEq(t, `{"status":"error","code":"UNAUTHORIZED","error":"Invalid login credentials"}`, string(ctx.Response.Body()))
	require.Nil(t, ctx.Response.Header.PeekCookie("dl_session"))
}

func TestSessionHandler_LoginInvalidPayload(t *testing.T) {
	h := NewSessionHandler(&stubAuth{}, nil, CookieConfig{}, nil, nil)

	ctx := jsonCtx("POST", "/session/login", `{"email":""}`)
	h.Login(ctx)
	require.Equal(t, 400, ctx.Response.StatusCode())
}

func TestSessionHandler_RegisterWithoutTokenSetsNoCookie(t *testing.T) {
	auth := &stubAuth{registerRes: &domain.AuthResult{User: bob, Message: "Check your email"}}
	h := NewSessionHandler(auth, nil, CookieConfig{}, nil, nil)

	ctx := jsonCtx("POST", "/session/register", `{"email":"bob@example.com","password":"pw","full_name":"Bob"}`)
	h.Register(ctx)

	require.Equal(t, 201, ctx.Response.StatusCode())
	require.Contains(t, string(ctx.Response.Body()), `"session_established":false`)
	require.Contains(t, string(ctx.Response.Body()), "Check your email")
	require.Nil(t, ctx.Response.Header.PeekCookie("dl_session"))
}

func TestSessionHandler_RegisterWithTokenSetsCookie(t *testing.T) {
	auth := &stubAuth{registerRes: &domain.AuthResult{Session: &domain.AuthSession{AccessToken: "new"}, User: bob}}
	h := NewSessionHandler(auth, nil, CookieConfig{}, nil, nil)

	ctx := jsonCtx("POST", "/session/register", `{"email":"bob@example.com","password":"pw"}`)
	h.Register(ctx)

	require.Contains(t, string(ctx.Response.Body()), `"session_established":true`)
	require.Equal(t, "new", string(responseCookie(t, ctx, "dl_session").Value()))
}

func TestSessionHandler_LogoutClearsCookieAndRevokes(t *testing.T) {
	auth := &stubAuth{done: make(chan struct{})}
	sessions := &stubSessions{}
	h := NewSessionHandler(auth, sessions, CookieConfig{}, nil, nil)

	ctx := jsonCtx("POST", "/session/logout", "")
	ctx.Request.Header.SetCookie("dl_session", "tok")
	h.Logout(ctx)

	require.Equal(t, 200, ctx.Response.StatusCode())
	cookie := responseCookie(t, ctx, "dl_session")
	require.Empty(t, cookie.Value())
	require.Equal(t, []string{"tok"}, sessions.forgotten)

	select {
	case <-auth.done:
	case <-time.After(time.Second):
		t.Fatal("backend sign-out was not attempted")
	}
	require.Equal(t, []string{"tok"}, auth.revoked)
}

func TestSessionHandler_LogoutWithoutSession(t *testing.T) {
	auth := &stubAuth{}
	h := NewSessionHandler(auth, nil, CookieConfig{}, nil, nil)

	ctx := jsonCtx("POST", "/session/logout", "")
	h.Logout(ctx)

	require.Equal(t, 200, ctx.Response.StatusCode())
	require.Empty(t, auth.revoked)
}

func TestSessionHandler_MeWithoutGuard(t *testing.T) {
	h := NewSessionHandler(&stubAuth{}, nil, CookieConfig{}, nil, nil)

	ctx := jsonCtx("GET", "/session/me", "")
	h.Me(ctx)
	require.Equal(t, 401, ctx.Response.StatusCode())
}

func TestPageHandler_ServesAndMisses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dashboard.html"), []byte("<h1>Dashboard</h1>"), 0o600))
	h := NewPageHandler(dir, nil, nil)

	ctx := jsonCtx("GET", "/dashboard", "")
	h.Page("dashboard")(ctx)
	require.Equal(t, 200, ctx.Response.StatusCode())
	require.Equal(t, "<h1>Dashboard</h1>", string(ctx.Response.Body()))
	require.Contains(t, string(ctx.Response.Header.ContentType()), "text/html")

	missing := jsonCtx("GET", "/portals", "")
	h.Page("portals")(missing)
	require.Equal(t, 404, missing.Response.StatusCode())
}

type stubStatus monitor.Status

func (s stubStatus) GetStatus() monitor.Status { return monitor.Status(s) }

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(stubStatus{Backend: true, BackendStatus: "healthy"}, nil, nil)
	ctx := jsonCtx("GET", "/health", "")
	h.Check(ctx)
	require.Equal(t, 200, ctx.Response.StatusCode())
	require.Contains(t, string(ctx.Response.Body()), `"status":"success"`)

	down := NewHealthHandler(stubStatus{Backend: false, BackendError: "connection refused"}, nil, nil)
	ctx = jsonCtx("GET", "/health", "")
	down.Check(ctx)
	require.Equal(t, 503, ctx.Response.StatusCode())
	require.Contains(t, string(ctx.Response.Body()), "connection refused")
}

func TestMapError(t *testing.T) {
	status, code := mapError(&apiclient.APIError{StatusCode: 409, Detail: "exists"})
	require.Equal(t, 409, status)
	require.Equal(t, "INVALID", code)

	status, code = mapError(&apiclient.TransportError{Err: context.DeadlineExceeded})
	require.Equal(t, 503, status)
	require.Equal(t, "UNAVAILABLE", code)

	status, _ = mapError(domain.ErrNotAuthenticated)
	require.Equal(t, 401, status)
}
