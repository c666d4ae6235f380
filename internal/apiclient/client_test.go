package apiclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/deadlines/domain"
	appLogger "github.com/fastygo/deadlines/pkg/logger"
)

// ---- helpers ----

type recorded struct {
	Method      string
	Path        string
	Query       string
	HasAuth     bool
	Auth        string
	ContentType string
	RequestID   string
	Body        []byte
}

type fakeBackend struct {
	ln *fasthttputil.InmemoryListener

	mu       sync.Mutex
	requests []recorded
}

func newFakeBackend(t *testing.T, handler fasthttp.RequestHandler) *fakeBackend {
	t.Helper()
	b := &fakeBackend{ln: fasthttputil.NewInmemoryListener()}
	go func() {
		_ = fasthttp.Serve(b.ln, func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			b.mu.Lock()
			b.requests = append(b.requests, recorded{
				Method:      string(ctx.Method()),
				Path:        string(ctx.Path()),
				Query:       string(ctx.QueryArgs().QueryString()),
				HasAuth:     auth != nil,
				Auth:        string(auth),
				ContentType: string(ctx.Request.Header.ContentType()),
				RequestID:   string(ctx.Request.Header.Peek("X-Request-ID")),
				Body:        append([]byte(nil), ctx.PostBody()...),
			})
			b.mu.Unlock()
			handler(ctx)
		})
	}()
	t.Cleanup(func() { _ = b.ln.Close() })
	return b
}

func (b *fakeBackend) httpClient() *fasthttp.Client {
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return b.ln.Dial() }}
}

func (b *fakeBackend) last(t *testing.T) recorded {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests)
	return b.requests[len(b.requests)-1]
}

func jsonResponse(status int, body string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(body)
	}
}

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	refresh string
	user    *domain.User
	cleared int
}

func (f *fakeTokens) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) ClearToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token, f.refresh, f.user = "", "", nil
	f.cleared++
	return nil
}

func (f *fakeTokens) SetSession(_ context.Context, token, refresh string, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token, f.refresh, f.user = token, refresh, user
	return nil
}

type fakeNavigator struct {
	current   string
	redirects []string
}

func (n *fakeNavigator) CurrentPath() string { return n.current }
func (n *fakeNavigator) Redirect(path string) { n.redirects = append(n.redirects, path) }

func newTestClient(b *fakeBackend, tokens TokenSource, opts ...Option) *Client {
	opts = append([]Option{WithHTTPClient(b.httpClient())}, opts...)
	return New("http://backend.test/", tokens, opts...)
}

// ---- tests ----

func TestGetDeadlines_ReturnsList(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"deadlines":[{"id":"d1","title":"Essay","due_date":"2025-01-01T00:00:00Z"}]}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	items, err := c.GetDeadlines(context.Background(), DeadlineFilter{Status: "pending", Limit: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Essay", items[0].Title)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), items[0].DueDate.UTC())

	req := b.last(t)
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "/api/deadlines", req.Path)
	require.Equal(t, "limit=5&status=pending", req.Query)
	require.Equal(t, "Bearer tok", req.Auth)
	require.Equal(t, "application/json", req.ContentType)
}

func TestGetDeadlines_AcceptsBareArray(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `[{"id":"d1","title":"A","due_date":"2025-01-01T00:00:00Z"},{"id":"d2","title":"B","due_date":"2025-01-02T00:00:00Z"}]`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	items, err := c.GetDeadlines(context.Background(), DeadlineFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Empty(t, b.last(t).Query)
}

func TestGetDeadlines_BackendDetail(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(500, `{"detail":"boom"}`))
	tokens := &fakeTokens{token: "tok"}
	c := newTestClient(b, tokens)

	items, err := c.GetDeadlines(context.Background(), DeadlineFilter{})
	require.Nil(t, items)
	require.EqualError(t, err, "boom")
	require.Equal(t, 500, StatusCode(err))
	require.False(t, IsUnauthorized(err))
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInternal))
	require.Zero(t, tokens.cleared)
}

func TestRequest_GenericHTTPError(t *testing.T) {
	b := newFakeBackend(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(404)
		ctx.SetBodyString("<html>not found</html>")
	})
	c := newTestClient(b, &fakeTokens{token: "tok"})

	_, err := c.GetDeadline(context.Background(), "missing")
	require.EqualError(t, err, "HTTP error! status: 404")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestRequest_NoTokenOmitsAuthorization(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"portals":[]}`))
	c := newTestClient(b, &fakeTokens{})

	portals, err := c.GetPortals(context.Background())
	require.NoError(t, err)
	require.Empty(t, portals)

	req := b.last(t)
	require.False(t, req.HasAuth, "Authorization must be absent, got %q", req.Auth)
}

func TestRequest_NilTokenSourceIsAnonymous(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"status":"healthy"}`))
	c := New("http://backend.test", nil, WithHTTPClient(b.httpClient()))

	health, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", health["status"])
	require.False(t, b.last(t).HasAuth)
}

func TestRequest_TokenReadBeforeEachRequest(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `[]`))
	tokens := &fakeTokens{token: "first"}
	c := newTestClient(b, tokens)

	_, err := c.GetNotifications(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer first", b.last(t).Auth)

	tokens.token = "second"
	_, err = c.GetNotifications(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer second", b.last(t).Auth)
}

func TestRequest_UnauthorizedClearsAndRedirects(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(401, `{"detail":"Token expired"}`))
	tokens := &fakeTokens{token: "tok", user: &domain.User{ID: "u1"}}
	nav := &fakeNavigator{current: "/dashboard"}
	c := newTestClient(b, tokens, WithNavigator(nav))

	_, err := c.GetDeadlines(context.Background(), DeadlineFilter{})
	require.EqualError(t, err, "Token expired")
	require.True(t, IsUnauthorized(err))

	_, ok := tokens.Token()
	require.False(t, ok)
	require.Nil(t, tokens.user)
	require.Equal(t, []string{"/login"}, nav.redirects)
}

func TestRequest_UnauthorizedOnLoginPageDoesNotRedirect(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(401, `{}`))
	tokens := &fakeTokens{token: "tok"}
	nav := &fakeNavigator{current: "/signin"}
	c := newTestClient(b, tokens, WithNavigator(nav), WithLoginPath("/signin"))

	_, err := c.Me(context.Background())
	require.EqualError(t, err, "HTTP error! status: 401")
	require.Equal(t, 1, tokens.cleared)
	require.Empty(t, nav.redirects)
}

func TestRequest_TransportFailure(t *testing.T) {
	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")
	}}
	tokens := &fakeTokens{token: "tok"}
	c := New("http://127.0.0.1:8000", tokens, WithHTTPClient(hc))

	_, err := c.GetPortals(context.Background())
	require.Error(t, err)
	require.True(t, IsTransport(err))
	require.Contains(t, err.Error(), "connection refused")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeUnavailable))
	require.Zero(t, tokens.cleared)
}

func TestRequest_CancelledContext(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{}`))
	c := newTestClient(b, &fakeTokens{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.HealthCheck(ctx)
	require.True(t, IsTransport(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRequest_ForwardsRequestID(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{}`))
	c := newTestClient(b, &fakeTokens{})

	ctx := appLogger.ContextWithRequestID(context.Background(), "req-42")
	_, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	require.Equal(t, "req-42", b.last(t).RequestID)
}

func TestLogin_StoresSession(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"access_token":"new-tok","refresh_token":"ref","user":{"id":"u1","email":"a@b.c"}}`))
	tokens := &fakeTokens{token: "stale"}
	c := newTestClient(b, tokens)

	res, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	require.Equal(t, "new-tok", res.Token())

	tok, _ := tokens.Token()
	require.Equal(t, "new-tok", tok)
	require.Equal(t, "ref", tokens.refresh)
	require.Equal(t, "u1", tokens.user.ID)

	req := b.last(t)
	require.Equal(t, "/api/auth/signin", req.Path)
	require.False(t, req.HasAuth)
	require.JSONEq(t, `{"email":"a@b.c","password":"pw"}`, string(req.Body))
}

func TestLogin_FailureKeepsExistingSession(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(401, `{"detail":"Invalid login credentials"}`))
	tokens := &fakeTokens{token: "existing"}
	nav := &fakeNavigator{current: "/login"}
	c := newTestClient(b, tokens, WithNavigator(nav))

	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	require.EqualError(t, err, "Invalid login credentials")

	tok, _ := tokens.Token()
	require.Equal(t, "existing", tok)
	require.Zero(t, tokens.cleared)
	require.Empty(t, nav.redirects)
}

func TestLogin_FetchesProfileBeforeStoring(t *testing.T) {
	b := newFakeBackend(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/auth/signin":
			jsonResponse(200, `{"access_token":"new"}`)(ctx)
		default:
			jsonResponse(200, `{"user":{"id":"u2","email":"b@b.c"}}`)(ctx)
		}
	})
	tokens := &fakeTokens{}
	c := newTestClient(b, tokens)

	res, err := c.Login(context.Background(), "b@b.c", "pw")
	require.NoError(t, err)
	require.Equal(t, "u2", res.User.ID)
	require.Equal(t, "u2", tokens.user.ID)

	me := b.last(t)
	require.Equal(t, "/api/auth/me", me.Path)
	require.Equal(t, "Bearer new", me.Auth)
}

func TestLogin_ProfileFailureKeepsExistingSession(t *testing.T) {
	b := newFakeBackend(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/auth/signin":
			jsonResponse(200, `{"access_token":"new"}`)(ctx)
		default:
			jsonResponse(500, `{"detail":"boom"}`)(ctx)
		}
	})
	old := &domain.User{ID: "u1"}
	tokens := &fakeTokens{token: "old", refresh: "old-ref", user: old}
	c := newTestClient(b, tokens)

	_, err := c.Login(context.Background(), "b@b.c", "pw")
	require.EqualError(t, err, "boom")

	tok, _ := tokens.Token()
	require.Equal(t, "old", tok)
	require.Equal(t, "old-ref", tokens.refresh)
	require.Same(t, old, tokens.user)
	require.Zero(t, tokens.cleared)
}

func TestLogin_ResponseWithoutToken(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"user":{"id":"u1"}}`))
	tokens := &fakeTokens{}
	c := newTestClient(b, tokens)

	_, err := c.Login(context.Background(), "a@b.c", "pw")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeUnauthorized))
	_, ok := tokens.Token()
	require.False(t, ok)
}

func TestRegister_WithoutTokenDoesNotStoreSession(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(201, `{"user":{"id":"u2","email":"new@b.c"},"message":"Check your email"}`))
	tokens := &fakeTokens{}
	c := newTestClient(b, tokens)

	res, err := c.Register(context.Background(), "new@b.c", "pw", "New User")
	require.NoError(t, err)
	require.Empty(t, res.Token())
	require.Equal(t, "u2", res.User.ID)
	_, ok := tokens.Token()
	require.False(t, ok)
	require.JSONEq(t, `{"email":"new@b.c","password":"pw","full_name":"New User"}`, string(b.last(t).Body))
}

func TestRegister_NestedSessionIsStored(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"user":{"id":"u2"},"session":{"access_token":"s-tok","refresh_token":"s-ref"}}`))
	tokens := &fakeTokens{}
	c := newTestClient(b, tokens)

	res, err := c.Register(context.Background(), "new@b.c", "pw", "")
	require.NoError(t, err)
	require.Equal(t, "s-tok", res.Token())
	tok, _ := tokens.Token()
	require.Equal(t, "s-tok", tok)
	require.Equal(t, "s-ref", tokens.refresh)
}

func TestRegister_TimesOut(t *testing.T) {
	b := newFakeBackend(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(300 * time.Millisecond)
		ctx.SetStatusCode(200)
	})
	c := newTestClient(b, &fakeTokens{}, WithRegisterTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Register(context.Background(), "slow@b.c", "pw", "")
	require.True(t, IsTransport(err))
	require.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestMe_AcceptsWrappedUser(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"user":{"id":"u1","email":"a@b.c","full_name":"Ada"}}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ada", user.DisplayName())
}

func TestCreateDeadline_ValidatesBeforeSending(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(201, `{}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	_, err := c.CreateDeadline(context.Background(), domain.DeadlineInput{})
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	b.mu.Lock()
	require.Empty(t, b.requests)
	b.mu.Unlock()
}

func TestCreateAndUpdateDeadline(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"id":"d1","title":"Essay","due_date":"2025-01-01T00:00:00Z","priority":"high"}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	title := "Essay"
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := c.CreateDeadline(context.Background(), domain.DeadlineInput{Title: &title, DueDate: &due})
	require.NoError(t, err)
	require.Equal(t, "d1", created.ID)
	require.JSONEq(t, `{"title":"Essay","due_date":"2025-01-01T00:00:00Z"}`, string(b.last(t).Body))

	prio := domain.PriorityHigh
	_, err = c.UpdateDeadline(context.Background(), "d-1", domain.DeadlineInput{Priority: &prio})
	require.NoError(t, err)
	req := b.last(t)
	require.Equal(t, http.MethodPut, req.Method)
	require.Equal(t, "/api/deadlines/d-1", req.Path)
	require.JSONEq(t, `{"priority":"high"}`, string(req.Body))

	require.NoError(t, c.DeleteDeadline(context.Background(), "d1"))
	require.Equal(t, http.MethodDelete, b.last(t).Method)
}

func TestPortalCalls_RequireID(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	_, err := c.SyncPortal(context.Background(), "")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	err = c.DeletePortal(context.Background(), "")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	b.mu.Lock()
	require.Empty(t, b.requests)
	b.mu.Unlock()
}

func TestSyncPortal(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"message":"synced","deadlines_found":3,"deadlines_created":1}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	res, err := c.SyncPortal(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 3, res.DeadlinesSeen)
	require.Equal(t, "/api/portals/p1/sync", b.last(t).Path)
}

func TestUpdateNotificationPreferences(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"preferences":{"email_enabled":true,"reminder_hours":[24,1]}}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	prefs, err := c.UpdateNotificationPreferences(context.Background(), domain.NotificationPreferences{EmailEnabled: true, ReminderHours: []int{24, 1}})
	require.NoError(t, err)
	require.True(t, prefs.EmailEnabled)
	require.Equal(t, []int{24, 1}, prefs.ReminderHours)
	require.Equal(t, http.MethodPut, b.last(t).Method)
}

func TestParseWhatsAppMessage(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(200, `{"deadlines":[{"title":"Lab report","due_date":"2025-03-01T17:00:00Z","confidence":0.87,"sender":"Prof"}]}`))
	c := newTestClient(b, &fakeTokens{token: "tok"})

	res, err := c.ParseWhatsAppMessage(context.Background(), domain.WhatsAppMessage{Message: "Lab report due Friday 5pm", Sender: "Prof"})
	require.NoError(t, err)
	require.Len(t, res.Deadlines, 1)
	require.InDelta(t, 0.87, res.Deadlines[0].Confidence, 1e-9)

	in := res.Deadlines[0].AsInput()
	require.NoError(t, in.Validate())
}

func TestUploadWhatsAppChat_SendsMultipart(t *testing.T) {
	var fileContent string
	b := newFakeBackend(t, func(ctx *fasthttp.RequestCtx) {
		fh, err := ctx.FormFile("file")
		if err != nil {
			ctx.SetStatusCode(400)
			return
		}
		f, err := fh.Open()
		if err == nil {
			data, _ := io.ReadAll(f)
			f.Close()
			fileContent = fh.Filename + ":" + string(data)
		}
		jsonResponse(200, `{"deadlines":[],"total_messages":2}`)(ctx)
	})
	c := newTestClient(b, &fakeTokens{token: "tok"})

	res, err := c.UploadWhatsAppChat(context.Background(), "/tmp/exports/chat.txt", strings.NewReader("[1/1/25] A: hi\n[1/1/25] B: bye"))
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalMessages)
	require.Equal(t, "chat.txt:[1/1/25] A: hi\n[1/1/25] B: bye", fileContent)
	require.True(t, strings.HasPrefix(b.last(t).ContentType, "multipart/form-data; boundary="))
}

func TestWithToken_IsolatedFromStore(t *testing.T) {
	b := newFakeBackend(t, jsonResponse(401, `{}`))
	tokens := &fakeTokens{token: "store-token"}
	nav := &fakeNavigator{current: "/dashboard"}
	c := newTestClient(b, tokens, WithNavigator(nav))

	err := c.WithToken("captured").Logout(context.Background())
	require.True(t, IsUnauthorized(err))
	require.Equal(t, "Bearer captured", b.last(t).Auth)
	require.Zero(t, tokens.cleared)
	require.Empty(t, nav.redirects)
}

func TestDetailFrom(t *testing.T) {
	require.Equal(t, "boom", detailFrom([]byte(`{"detail":"boom"}`)))
	require.Equal(t, "field required; value is not a valid email",
		detailFrom([]byte(`{"detail":[{"loc":["body","email"],"msg":"field required"},{"msg":"value is not a valid email"}]}`)))
	require.Equal(t, "bad", detailFrom([]byte(`{"message":"bad"}`)))
	require.Equal(t, "nested", detailFrom([]byte(`{"error":{"message":"nested"}}`)))
	require.Empty(t, detailFrom([]byte(`not json`)))
	require.Empty(t, detailFrom(nil))
}
