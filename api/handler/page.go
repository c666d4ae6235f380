package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/api/transport"
	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/pkg/httpcontext"
)

// PageHandler serves the prebuilt HTML pages from a static directory.
type PageHandler struct {
	baseHandler
	dir string
}

func NewPageHandler(dir string, adapter *httpcontext.Adapter, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		baseHandler: newBaseHandler(adapter, logger),
		dir:         dir,
	}
}

// Page returns a handler that serves <dir>/<name>.html.
func (h *PageHandler) Page(name string) fasthttp.RequestHandler {
	path := filepath.Join(h.dir, name+".html")
	return func(ctx *fasthttp.RequestCtx) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			if err != nil && !os.IsNotExist(err) {
				h.logger.Warn("page lookup failed", zap.String("page", name), zap.Error(err))
			}
			h.respondJSON(ctx, http.StatusNotFound, transport.NewError(string(domain.ErrCodeNotFound), "page not found", nil))
			return
		}
		ctx.SendFile(path)
		ctx.Response.Header.SetContentType("text/html; charset=utf-8")
	}
}

// AssetsDir is where /assets/* is served from.
func (h *PageHandler) AssetsDir() string {
	return filepath.Join(h.dir, "assets")
}
