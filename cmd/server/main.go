package main

import (
	"context"
	"log"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/deadlines/api/handler"
	"github.com/fastygo/deadlines/internal/apiclient"
	"github.com/fastygo/deadlines/internal/config"
	"github.com/fastygo/deadlines/internal/infrastructure/monitor"
	redisInfra "github.com/fastygo/deadlines/internal/infrastructure/redis"
	"github.com/fastygo/deadlines/internal/middleware"
	"github.com/fastygo/deadlines/internal/router"
	"github.com/fastygo/deadlines/internal/services/lifecycle"
	"github.com/fastygo/deadlines/pkg/httpcontext"
	"github.com/fastygo/deadlines/pkg/logger"
	"github.com/fastygo/deadlines/repository"
	redisRepo "github.com/fastygo/deadlines/repository/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen()

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	var sessionCache repository.SessionCache
	if redisClient != nil {
		sessionCache = redisRepo.NewSessionCache(redisClient, cfg.Session.CacheTTL)
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	} else {
		zapLogger.Info("redis not configured, session cache disabled")
	}

	backendHTTP := &fasthttp.Client{
		Name:                cfg.AppName,
		MaxIdleConnDuration: cfg.HTTP.IdleTimeout,
	}
	api := apiclient.New(cfg.Backend.URL, nil,
		apiclient.WithHTTPClient(backendHTTP),
		apiclient.WithLogger(zapLogger),
		apiclient.WithTimeout(cfg.Backend.RequestTimeout),
		apiclient.WithRegisterTimeout(cfg.Backend.RegisterTimeout),
		apiclient.WithLoginPath(cfg.Session.LoginPath),
	)

	mon := monitor.New(api, redisClient, cfg.Backend.HealthInterval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop(ctx)
		return nil
	})

	guard := middleware.NewSessionGuard(middleware.GuardConfig{
		CookieName: cfg.Session.CookieName,
		LoginPath:  cfg.Session.LoginPath,
		CacheTTL:   cfg.Session.CacheTTL,
		JWTSecret:  cfg.JWT.Secret,
		Timeout:    cfg.Context.RequestTimeout,
	}, api, sessionCache, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	proxyTimeout := cfg.Backend.RequestTimeout
	if proxyTimeout <= 0 {
		proxyTimeout = cfg.Context.RequestTimeout
	}

	handlers := router.Handlers{
		Proxy: apiHandler.NewProxyHandler(cfg.Backend.URL, cfg.Session.CookieName, backendHTTP, proxyTimeout, ctxAdapter, zapLogger),
		Session: apiHandler.NewSessionHandler(api, guard, apiHandler.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			MaxAge: cfg.Session.CookieMaxAge,
		}, ctxAdapter, zapLogger),
		Pages:  apiHandler.NewPageHandler(cfg.HTTP.StaticDir, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	limiter := middleware.NewRateLimiter(cfg.Proxy.RateLimit, cfg.Proxy.RateBurst)
	r := router.New(handlers, router.Guards{
		Page:      guard.Page,
		API:       guard.API,
		RateLimit: limiter.Middleware,
	}, cfg.Proxy.Prefix)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func(ctx context.Context) error {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("backend", cfg.Backend.URL),
			zap.String("proxy_prefix", cfg.Proxy.Prefix),
		)
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	if err := manager.Wait(); err != nil {
		zapLogger.Error("server stopped unexpectedly", zap.Error(err))
	}

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
