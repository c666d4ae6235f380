package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/api/transport"
	"github.com/fastygo/deadlines/internal/middleware"
	"github.com/fastygo/deadlines/pkg/httpcontext"
)

const proxyFailure = "Failed to fetch from backend"

var errNonJSONResponse = errors.New("backend returned a non-JSON response")

// ProxyHandler relays /api/proxy/<path> to the backend origin.
type ProxyHandler struct {
	baseHandler
	client     *fasthttp.Client
	backendURL string
	cookieName string
	timeout    time.Duration
}

// NewProxyHandler creates the relay. Requests without an Authorization header
// are sent with the token from the cookieName session cookie, if any.
func NewProxyHandler(backendURL, cookieName string, client *fasthttp.Client, timeout time.Duration, adapter *httpcontext.Adapter, logger *zap.Logger) *ProxyHandler {
	if client == nil {
		client = &fasthttp.Client{Name: "deadlines-proxy"}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ProxyHandler{
		baseHandler: newBaseHandler(adapter, logger),
		client:      client,
		backendURL:  strings.TrimRight(backendURL, "/"),
		cookieName:  cookieName,
		timeout:     timeout,
	}
}

// @Summary Relay a request to the backend
// @Tags proxy
// @Router /api/proxy/{path} [get,post,put,delete]
func (h *ProxyHandler) Forward(ctx *fasthttp.RequestCtx) {
	target := h.targetURL(ctx)
	method := string(ctx.Method())
	reqID := httpcontext.RequestID(ctx)
	log := h.logger.With(zap.String("request_id", reqID), zap.String("method", method), zap.String("url", target))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set(httpcontext.HeaderRequestID, reqID)
	if auth := ctx.Request.Header.Peek("Authorization"); len(auth) > 0 {
		req.Header.SetBytesV("Authorization", auth)
	} else if h.cookieName != "" {
		if token := middleware.SessionToken(ctx, h.cookieName); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if method == http.MethodPost || method == http.MethodPut {
		body := ctx.PostBody()
		if len(body) > 0 && !json.Valid(body) {
			h.fail(ctx, log, target, errors.New("request body is not valid JSON"))
			return
		}
		req.SetBody(body)
	}

	if err := h.client.DoTimeout(req, resp, h.timeout); err != nil {
		h.fail(ctx, log, target, err)
		return
	}

	body := resp.Body()
	if len(body) > 0 && !json.Valid(body) {
		h.fail(ctx, log, target, errNonJSONResponse)
		return
	}

	ctx.Response.Header.Set(httpcontext.HeaderRequestID, reqID)
	ctx.SetStatusCode(resp.StatusCode())
	if len(body) > 0 {
		ctx.Response.Header.SetContentType("application/json")
		ctx.SetBody(body)
	}
	log.Debug("proxied request", zap.Int("status", resp.StatusCode()))
}

func (h *ProxyHandler) targetURL(ctx *fasthttp.RequestCtx) string {
	path, _ := ctx.UserValue("path").(string)
	target := h.backendURL + "/" + strings.TrimPrefix(path, "/")
	if query := ctx.URI().QueryString(); len(query) > 0 {
		target += "?" + string(query)
	}
	return target
}

func (h *ProxyHandler) fail(ctx *fasthttp.RequestCtx, log *zap.Logger, target string, err error) {
	log.Error("proxy request failed", zap.Error(err))
	h.writeJSON(ctx, http.StatusInternalServerError, transport.ProxyError{
		Error:   proxyFailure,
		Details: err.Error(),
		URL:     target,
	})
}
