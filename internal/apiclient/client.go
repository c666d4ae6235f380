// Package apiclient talks to the deadlines backend REST API.
//
// Every helper returns (value, error). Backend rejections come back as *APIError,
// unreachable backends as *TransportError. A 401 additionally clears the token
// source (when it can be cleared) and sends the navigator to the login page.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/pkg/httpcontext"
	appLogger "github.com/fastygo/deadlines/pkg/logger"
)

const (
	contentTypeJSON  = "application/json"
	defaultLoginPath = "/login"
)

// TokenSource yields the current bearer token. It is consulted before every request.
type TokenSource interface {
	Token() (string, bool)
}

// SessionWriter is implemented by token sources that can store a fresh sign-in.
type SessionWriter interface {
	SetSession(ctx context.Context, token, refresh string, user *domain.User) error
}

type tokenClearer interface {
	ClearToken(ctx context.Context) error
}

// Navigator moves the user interface to another page.
type Navigator interface {
	CurrentPath() string
	Redirect(path string)
}

type staticToken string

func (t staticToken) Token() (string, bool) {
	return string(t), t != ""
}

// Client talks to the deadlines backend, attaching the current bearer token and
// redirecting to the login page when a request is rejected with 401.
type Client struct {
	baseURL         string
	http            *fasthttp.Client
	tokens          TokenSource
	navigator       Navigator
	loginPath       string
	timeout         time.Duration
	registerTimeout time.Duration
	logger          *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNavigator sets where unauthorized responses redirect to. Nil disables redirects.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) { c.navigator = nav }
}

// WithLoginPath overrides the redirect target for unauthorized responses.
func WithLoginPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.loginPath = path
		}
	}
}

// WithHTTPClient replaces the fasthttp client, e.g. to dial an in-memory listener.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request. Zero keeps the transport defaults.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRegisterTimeout bounds the registration request, which the backend may take longer on.
func WithRegisterTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.registerTimeout = d
		}
	}
}

// New creates a client for the backend at baseURL. tokens may be nil for anonymous use.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = staticToken("")
	}
	c := &Client{
		baseURL:         trimSlash(baseURL),
		http:            &fasthttp.Client{Name: "deadlines-gateway"},
		tokens:          tokens,
		loginPath:       defaultLoginPath,
		registerTimeout: 30 * time.Second,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy bound to a fixed token. The copy never touches a
// token store or navigator, which makes it safe for per-request server use.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.tokens = staticToken(token)
	clone.navigator = nil
	return &clone
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call describes one backend request.
type Call struct {
	Method string
	Path   string
	// Body is JSON encoded unless RawBody is set.
	Body        any
	RawBody     []byte
	ContentType string
	RequireAuth bool
	// Anonymous calls never carry Authorization and never reset the session on 401.
	Anonymous bool
	Timeout   time.Duration
}

// Request performs call and decodes a JSON response into out (when non-nil).
func (c *Client) Request(ctx context.Context, call Call, out any) error {
	body, err := c.do(ctx, call)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", call.Method, call.Path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, call Call) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + call.Path
	log := appLogger.WithRequestID(ctx, c.logger).With(zap.String("method", method), zap.String("path", call.Path))

	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}

	payload := call.RawBody
	if payload == nil && call.Body != nil {
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	contentType := call.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	req.Header.SetContentType(contentType)
	req.Header.Set("Accept", contentTypeJSON)
	if reqID := appLogger.RequestID(ctx); reqID != "" {
		req.Header.Set(httpcontext.HeaderRequestID, reqID)
	}

	if !call.Anonymous {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		} else if call.RequireAuth {
			log.Warn("request requires authentication but no token is present")
		}
	}
	if payload != nil {
		req.SetBody(payload)
	}

	if err := c.send(ctx, req, resp, call.Timeout); err != nil {
		log.Warn("backend request failed", zap.Error(err))
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)
	if status < 200 || status >= 300 {
		apiErr := newAPIError(status, body)
		log.Debug("backend rejected request", zap.Int("status", status), zap.String("detail", apiErr.Detail))
		if status == http.StatusUnauthorized && !call.Anonymous {
			c.handleUnauthorized(ctx, log)
		}
		return nil, apiErr
	}
	return body, nil
}

// send honours the tightest of the context deadline, the call timeout and the client timeout.
func (c *Client) send(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, callTimeout time.Duration) error {
	deadline, ok := ctx.Deadline()
	for _, d := range []time.Duration{callTimeout, c.timeout} {
		if d <= 0 {
			continue
		}
		if candidate := time.Now().Add(d); !ok || candidate.Before(deadline) {
			deadline, ok = candidate, true
		}
	}
	if ok {
		return c.http.DoDeadline(req, resp, deadline)
	}
	return c.http.Do(req, resp)
}

func (c *Client) handleUnauthorized(ctx context.Context, log *zap.Logger) {
	if clearer, ok := c.tokens.(tokenClearer); ok {
		if err := clearer.ClearToken(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to clear token after 401", zap.Error(err))
		}
	}
	if c.navigator != nil && c.navigator.CurrentPath() != c.loginPath {
		c.navigator.Redirect(c.loginPath)
	}
}

func (c *Client) storeSession(ctx context.Context, res *domain.AuthResult) error {
	writer, ok := c.tokens.(SessionWriter)
	if !ok {
		return nil
	}
	if err := writer.SetSession(ctx, res.Token(), res.Refresh(), res.User); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// decodeList accepts either a bare JSON array or an object carrying the list
// under key (or "data").
func decodeList[T any](body []byte, key string) ([]T, error) {
	items := []T{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return items, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope[key]
	if !ok {
		raw, ok = envelope["data"]
	}
	if !ok || string(raw) == "null" {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeObject accepts either the object itself or an object wrapping it under key.
func decodeObject[T any](body []byte, key string) (*T, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	raw := json.RawMessage(body)
	if inner, ok := envelope[key]; ok && len(inner) > 0 && inner[0] == '{' {
		raw = inner
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
