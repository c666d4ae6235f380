package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/api/transport"
	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/apiclient"
	"github.com/fastygo/deadlines/pkg/httpcontext"
	appLogger "github.com/fastygo/deadlines/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	stdCtx, cancel := context.WithCancel(context.Background())
	return appLogger.ContextWithRequestID(stdCtx, httpcontext.RequestID(ctx)), cancel
}

func (h baseHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	h.writeJSON(ctx, status, payload)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	h.respondJSON(ctx, status, transport.NewError(code, err.Error(), nil))
}

func (h baseHandler) invalidPayload(ctx *fasthttp.RequestCtx) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
}

// mapError keeps the backend's status for rejected calls and classifies everything else.
func mapError(err error) (int, string) {
	code := classify(err)
	if status := apiclient.StatusCode(err); status != 0 {
		return status, string(code)
	}
	switch code {
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized, string(code)
	case domain.ErrCodeForbidden:
		return http.StatusForbidden, string(code)
	case domain.ErrCodeInvalid:
		return http.StatusBadRequest, string(code)
	case domain.ErrCodeNotFound:
		return http.StatusNotFound, string(code)
	case domain.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests, string(code)
	case domain.ErrCodeUnavailable:
		return http.StatusServiceUnavailable, string(code)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

func classify(err error) domain.ErrorCode {
	for _, code := range []domain.ErrorCode{
		domain.ErrCodeUnauthorized,
		domain.ErrCodeForbidden,
		domain.ErrCodeInvalid,
		domain.ErrCodeNotFound,
		domain.ErrCodeTooManyRequests,
		domain.ErrCodeUnavailable,
	} {
		if domain.IsDomainError(err, code) {
			return code
		}
	}
	return domain.ErrCodeInternal
}
