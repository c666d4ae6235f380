// Package tokenstore keeps the one bearer token and cached user profile of a
// client context, backed by durable local storage.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/repository"
)

// Snapshot is the state handed to change listeners.
type Snapshot struct {
	Token string
	User  *domain.User
}

// LoggedIn reports whether the snapshot carries a token.
func (s Snapshot) LoggedIn() bool {
	return s.Token != ""
}

type Store struct {
	storage repository.LocalStorage
	feed    repository.ChangeFeed
	origin  string
	logger  *zap.Logger

	mu      sync.RWMutex
	token   string
	refresh string
	user    *domain.User

	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int
}

// New creates a token store. feed may be nil when no other context shares the storage.
func New(storage repository.LocalStorage, feed repository.ChangeFeed, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage:   storage,
		feed:      feed,
		origin:    uuid.NewString(),
		logger:    logger,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Load replaces the in-memory state with what durable storage holds.
func (s *Store) Load(ctx context.Context) error {
	token, err := s.read(ctx, repository.KeyAccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.read(ctx, repository.KeyRefreshToken)
	if err != nil {
		return err
	}
	user, err := s.readUser(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.refresh = refresh
	s.user = user
	s.mu.Unlock()
	return nil
}

// Token returns the current bearer token.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// User returns a copy of the cached profile. A profile without a token is never trusted.
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Snapshot() Snapshot {
	token, _ := s.Token()
	return Snapshot{Token: token, User: s.User()}
}

// SetToken stores the token in memory and durable storage. The in-memory copy is
// updated first so the next request uses it even if persisting fails.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.ClearToken(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	err := s.storage.Set(ctx, repository.KeyAccessToken, token)
	s.changed(ctx, repository.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.refresh = token
	s.mu.Unlock()

	var err error
	if token == "" {
		err = s.storage.Delete(ctx, repository.KeyRefreshToken)
	} else {
		err = s.storage.Set(ctx, repository.KeyRefreshToken, token)
	}
	s.changed(ctx, repository.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

// SetUser caches the profile. It fails when no token is present.
func (s *Store) SetUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return domain.ErrNotAuthenticated
	}
	u := *user
	s.user = &u
	s.mu.Unlock()

	err = s.storage.Set(ctx, repository.KeyUser, string(payload))
	s.changed(ctx, repository.KeyUser)
	if err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

// SetSession replaces the whole session with what a successful sign-in returns.
// A missing refresh token or user removes the one stored for the previous session.
func (s *Store) SetSession(ctx context.Context, token, refresh string, user *domain.User) error {
	if token == "" {
		return domain.ErrNotAuthenticated
	}
	if err := s.SetToken(ctx, token); err != nil {
		return err
	}
	if err := s.SetRefreshToken(ctx, refresh); err != nil {
		return err
	}
	if user != nil {
		return s.SetUser(ctx, user)
	}
	return s.dropUser(ctx)
}

func (s *Store) dropUser(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	err := s.storage.Delete(ctx, repository.KeyUser)
	s.changed(ctx, repository.KeyUser)
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return nil
}

// ClearToken drops the token, refresh token and cached user. Clearing an empty store is a no-op
// apart from the storage delete, so repeated calls leave the same state.
func (s *Store) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	had := s.token != "" || s.refresh != "" || s.user != nil
	s.token = ""
	s.refresh = ""
	s.user = nil
	s.mu.Unlock()

	err := s.storage.Delete(ctx, repository.KeyAccessToken, repository.KeyRefreshToken, repository.KeyUser)
	if had {
		s.changed(ctx, repository.KeyAccessToken)
	}
	if err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// OnChange registers fn for every state change, local or from another context.
// The returned func removes the listener.
func (s *Store) OnChange(fn func(Snapshot)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Watch applies changes made by other contexts until ctx is cancelled.
// Without a change feed it returns immediately.
func (s *Store) Watch(ctx context.Context) error {
	if s.feed == nil {
		return nil
	}
	changes, err := s.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to storage changes: %w", err)
	}
	for change := range changes {
		if change.Origin == s.origin {
			continue
		}
		if err := s.apply(ctx, change.Key); err != nil {
			s.logger.Warn("failed to apply storage change", zap.String("key", change.Key), zap.Error(err))
		}
	}
	return ctx.Err()
}

func (s *Store) apply(ctx context.Context, key string) error {
	switch key {
	case repository.KeyAccessToken:
		token, err := s.read(ctx, key)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.token = token
		if token == "" {
			s.refresh = ""
			s.user = nil
		}
		s.mu.Unlock()
	case repository.KeyRefreshToken:
		refresh, err := s.read(ctx, key)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.refresh = refresh
		s.mu.Unlock()
	case repository.KeyUser:
		user, err := s.readUser(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.user = user
		s.mu.Unlock()
	default:
		return nil
	}
	s.notify()
	return nil
}

func (s *Store) changed(ctx context.Context, key string) {
	if s.feed != nil {
		if err := s.feed.Publish(ctx, repository.Change{Key: key, Origin: s.origin}); err != nil {
			s.logger.Warn("failed to publish storage change", zap.String("key", key), zap.Error(err))
		}
	}
	s.notify()
}

func (s *Store) notify() {
	snap := s.Snapshot()

	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	value, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) readUser(ctx context.Context) (*domain.User, error) {
	raw, err := s.read(ctx, repository.KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn("discarding unreadable cached user", zap.Error(err))
		return nil, nil
	}
	return &user, nil
}
