// Package cli implements the deadlines command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/fastygo/deadlines/internal/apiclient"
	"github.com/fastygo/deadlines/internal/config"
	redisInfra "github.com/fastygo/deadlines/internal/infrastructure/redis"
	"github.com/fastygo/deadlines/internal/services/lifecycle"
	"github.com/fastygo/deadlines/internal/tokenstore"
	"github.com/fastygo/deadlines/repository"
	"github.com/fastygo/deadlines/repository/boltdb"
	redisRepo "github.com/fastygo/deadlines/repository/redis"
	"github.com/fastygo/deadlines/usecase/session"
)

// App is everything a command needs: one token store, one API client and one
// session manager for the whole process.
type App struct {
	Store       *tokenstore.Store
	API         *apiclient.Client
	Session     *session.Manager
	BackendURL  string
	StorageName string

	lifecycle   *lifecycle.Manager
	pingStorage func(ctx context.Context) error
}

// StorageHealth reports whether token storage is reachable. Storage without a
// probe always reports nil.
func (a *App) StorageHealth(ctx context.Context) error {
	if a.pingStorage == nil {
		return nil
	}
	return a.pingStorage(ctx)
}

// NewApp wires a session manager around an existing store and client.
func NewApp(store *tokenstore.Store, api *apiclient.Client, logger *zap.Logger, opts ...session.Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		Store:      store,
		API:        api,
		Session:    session.New(api, store, logger, opts...),
		BackendURL: api.BaseURL(),
		lifecycle:  lifecycle.New(0, logger),
	}
	return app
}

// Close lets background sign-outs finish, then stops the watcher and releases storage.
func (a *App) Close(ctx context.Context) error {
	a.Session.Close()
	waitErr := a.Session.Wait(ctx)
	return errors.Join(waitErr, a.lifecycle.Shutdown(ctx))
}

// Open builds the App from configuration: durable token storage, the API client
// with a terminal navigator, and the session manager.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, stderr io.Writer) (*App, error) {
	lc := lifecycle.New(cfg.Context.ShutdownTimeout, logger)

	opened, err := openStorage(cfg, logger, lc)
	if err != nil {
		_ = lc.Shutdown(ctx)
		return nil, err
	}

	store := tokenstore.New(opened.storage, opened.feed, logger)
	if err := store.Load(ctx); err != nil {
		_ = lc.Shutdown(ctx)
		return nil, fmt.Errorf("load stored session: %w", err)
	}

	timeout := cfg.Backend.RequestTimeout
	if timeout <= 0 {
		timeout = cfg.Context.RequestTimeout
	}
	api := apiclient.New(cfg.Backend.URL, store,
		apiclient.WithLogger(logger),
		apiclient.WithNavigator(newTerminalNavigator(stderr)),
		apiclient.WithTimeout(timeout),
		apiclient.WithRegisterTimeout(cfg.Backend.RegisterTimeout),
		apiclient.WithLoginPath(cfg.Session.LoginPath),
	)

	app := NewApp(store, api, logger, session.WithRevokeTimeout(timeout))
	app.StorageName = opened.name
	app.pingStorage = opened.ping
	app.lifecycle.Register("storage", func(ctx context.Context) error { return lc.Shutdown(ctx) })
	if opened.feed != nil {
		app.lifecycle.Go("token_watch", store.Watch)
	}
	return app, nil
}

type openedStorage struct {
	storage repository.LocalStorage
	feed    repository.ChangeFeed
	name    string
	ping    func(ctx context.Context) error
}

func openStorage(cfg *config.Config, logger *zap.Logger, lc *lifecycle.Manager) (*openedStorage, error) {
	profile := cfg.Storage.Profile
	switch cfg.Storage.Driver {
	case "redis":
		client, err := redisInfra.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		lc.Register("redis", func(context.Context) error { return client.Close() })
		return &openedStorage{
			storage: redisRepo.NewStorage(client, profile),
			feed:    redisRepo.NewChangeFeed(client, profile, logger),
			name:    "redis:" + profile,
			ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}, nil
	default:
		path := cfg.Storage.Path
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("locate config dir: %w", err)
			}
			path = filepath.Join(dir, "deadlines", "tokens.db")
		}
		storage, err := boltdb.Open(path, profile)
		if err != nil {
			return nil, fmt.Errorf("open token storage %s: %w", path, err)
		}
		lc.Register("bolt", func(context.Context) error { return storage.Close() })
		return &openedStorage{
			storage: storage,
			name:    "bolt:" + path + "#" + profile,
			ping:    func(context.Context) error { return storage.Ping() },
		}, nil
	}
}

// terminalNavigator stands in for page redirects: it tells the user to sign in again.
type terminalNavigator struct {
	out  io.Writer
	once sync.Once
}

func newTerminalNavigator(out io.Writer) *terminalNavigator {
	if out == nil {
		out = os.Stderr
	}
	return &terminalNavigator{out: out}
}

func (n *terminalNavigator) CurrentPath() string {
	return ""
}

func (n *terminalNavigator) Redirect(string) {
	n.once.Do(func() {
		fmt.Fprintln(n.out, "session expired, run `deadlines login`")
	})
}
