package router

import (
	"net/http"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/deadlines/api/handler"
)

type Handlers struct {
	Proxy   *apiHandler.ProxyHandler
	Session *apiHandler.SessionHandler
	Pages   *apiHandler.PageHandler
	Health  *apiHandler.HealthHandler
}

type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

type Guards struct {
	Page      Middleware
	API       Middleware
	RateLimit Middleware
}

// PublicPages and ProtectedPages map routes to page names under the static directory.
var (
	PublicPages = map[string]string{
		"/":         "index",
		"/login":    "login",
		"/register": "register",
	}
	ProtectedPages = map[string]string{
		"/dashboard":     "dashboard",
		"/deadlines":     "deadlines",
		"/portals":       "portals",
		"/whatsapp":      "whatsapp",
		"/notifications": "notifications",
		"/settings":      "settings",
	}
)

func New(handlers Handlers, guards Guards, proxyPrefix string) *router.Router {
	guards = guards.withDefaults()
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Proxy
	proxy := guards.RateLimit(handlers.Proxy.Forward)
	proxyPath := proxyPrefix + "/{path:*}"
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		r.Handle(method, proxyPath, proxy)
	}

	// Web session
	r.POST("/session/login", handlers.Session.Login)
	r.POST("/session/register", handlers.Session.Register)
	r.POST("/session/logout", handlers.Session.Logout)
	r.GET("/session/me", guards.API(handlers.Session.Me))

	// Pages
	for path, page := range PublicPages {
		r.GET(path, handlers.Pages.Page(page))
	}
	for path, page := range ProtectedPages {
		r.GET(path, guards.Page(handlers.Pages.Page(page)))
	}
	r.ServeFiles("/assets/{filepath:*}", handlers.Pages.AssetsDir())

	return r
}

func (g Guards) withDefaults() Guards {
	pass := func(next fasthttp.RequestHandler) fasthttp.RequestHandler { return next }
	if g.Page == nil {
		g.Page = pass
	}
	if g.API == nil {
		g.API = pass
	}
	if g.RateLimit == nil {
		g.RateLimit = pass
	}
	return g
}
