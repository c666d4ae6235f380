// Package session owns the one signed-in session of a running client and
// tells every subscriber when it changes.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/apiclient"
	"github.com/fastygo/deadlines/internal/tokenstore"
)

const defaultRevokeTimeout = 5 * time.Second

// Backend is the slice of the API client the manager needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*domain.AuthResult, error)
	Register(ctx context.Context, email, password, fullName string) (*domain.AuthResult, error)
	Me(ctx context.Context) (*domain.User, error)
	Revoke(ctx context.Context, token string) error
}

// Tokens is the token store as seen by the manager.
type Tokens interface {
	Token() (string, bool)
	RefreshToken() string
	User() *domain.User
	SetUser(ctx context.Context, user *domain.User) error
	SetSession(ctx context.Context, token, refresh string, user *domain.User) error
	ClearToken(ctx context.Context) error
	OnChange(fn func(tokenstore.Snapshot)) func()
}

// State is what subscribers observe.
type State struct {
	User    *domain.User
	Loading bool
}

func (s State) Authenticated() bool {
	return s.User != nil
}

// RegisterResult tells the caller whether registration also signed the user in.
type RegisterResult struct {
	User               *domain.User
	SessionEstablished bool
	Message            string
}

// Manager owns the signed-in state of one application instance.
type Manager struct {
	api           Backend
	tokens        Tokens
	logger        *zap.Logger
	revokeTimeout time.Duration

	bootOnce sync.Once
	bootErr  error

	mu    sync.RWMutex
	state State

	subsMu sync.Mutex
	subs   map[int]func(State)
	nextID int

	unwatch func()
	pending sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithRevokeTimeout bounds the background sign-out call made by Logout.
func WithRevokeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.revokeTimeout = d
		}
	}
}

// New creates a manager that follows tokens. Call Bootstrap before reading State.
func New(api Backend, tokens Tokens, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		api:           api,
		tokens:        tokens,
		logger:        logger,
		revokeTimeout: defaultRevokeTimeout,
		state:         State{Loading: true},
		subs:          make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unwatch = tokens.OnChange(m.tokensChanged)
	return m
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) User() *domain.User {
	return m.State().User
}

// Bootstrap restores the stored session. Only the first call does any work;
// Loading turns false exactly once, when it finishes.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.bootOnce.Do(func() {
		user, err := m.restore(ctx)
		m.bootErr = err
		m.update(func(s *State) {
			s.User = user
			s.Loading = false
		})
	})
	return m.bootErr
}

func (m *Manager) restore(ctx context.Context) (*domain.User, error) {
	if _, ok := m.tokens.Token(); !ok {
		return nil, nil
	}
	user, err := m.api.Me(ctx)
	if err != nil {
		if apiclient.IsTransport(err) {
			// Backend unreachable: keep the token and fall back to the cached profile.
			m.logger.Warn("session restore skipped, backend unreachable", zap.Error(err))
			return m.tokens.User(), err
		}
		m.logger.Info("stored session rejected, signing out", zap.Error(err))
		if clearErr := m.tokens.ClearToken(ctx); clearErr != nil {
			m.logger.Warn("failed to clear rejected token", zap.Error(clearErr))
		}
		return nil, err
	}
	if err := m.tokens.SetUser(ctx, user); err != nil {
		m.logger.Warn("failed to cache user profile", zap.Error(err))
	}
	return user, nil
}

// Login signs in. On failure the previous session is left as it was.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "email and password are required")
	}
	prev := m.saved()
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user, err := m.profile(ctx, res, prev)
	if err != nil {
		return nil, err
	}
	m.setUser(user)
	m.logger.Info("signed in", zap.String("user_id", user.ID))
	return user, nil
}

// Register creates an account. Whether the caller is now signed in depends on
// the backend's verification policy and is reported in the result.
func (m *Manager) Register(ctx context.Context, email, password, fullName string) (*RegisterResult, error) {
	if email == "" || password == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "email and password are required")
	}
	prev := m.saved()
	res, err := m.api.Register(ctx, email, password, fullName)
	if err != nil {
		return nil, err
	}
	out := &RegisterResult{User: res.User, Message: res.Message}
	if res.Token() == "" {
		return out, nil
	}

	user, err := m.profile(ctx, res, prev)
	if err != nil {
		return nil, err
	}
	m.setUser(user)
	out.User = user
	out.SessionEstablished = true
	return out, nil
}

// savedSession is the stored sign-in a failed login falls back to.
type savedSession struct {
	token   string
	refresh string
	user    *domain.User
}

func (m *Manager) saved() savedSession {
	token, _ := m.tokens.Token()
	return savedSession{token: token, refresh: m.tokens.RefreshToken(), user: m.tokens.User()}
}

// profile returns the user of a fresh sign-in, asking the backend when the
// response did not include one. If that fails, prev is put back.
func (m *Manager) profile(ctx context.Context, res *domain.AuthResult, prev savedSession) (*domain.User, error) {
	if res.User != nil {
		return res.User, nil
	}
	user, err := m.api.Me(ctx)
	if err != nil {
		m.rollback(ctx, prev)
		return nil, err
	}
	if err := m.tokens.SetUser(ctx, user); err != nil {
		m.logger.Warn("failed to cache user profile", zap.Error(err))
	}
	return user, nil
}

func (m *Manager) rollback(ctx context.Context, prev savedSession) {
	ctx = context.WithoutCancel(ctx)
	if prev.token == "" {
		if err := m.tokens.ClearToken(ctx); err != nil {
			m.logger.Warn("failed to clear token after profile fetch failure", zap.Error(err))
		}
		m.setUser(nil)
		return
	}
	if err := m.tokens.SetSession(ctx, prev.token, prev.refresh, prev.user); err != nil {
		m.logger.Warn("failed to restore previous session", zap.Error(err))
	}
	m.setUser(prev.user)
}

// Logout clears the local session before returning. The backend sign-out runs
// in the background with the token captured here; use Wait to let it finish.
func (m *Manager) Logout(ctx context.Context) error {
	token, hadToken := m.tokens.Token()
	err := m.tokens.ClearToken(ctx)
	m.setUser(nil)

	if hadToken {
		m.pending.Add(1)
		go m.revoke(context.WithoutCancel(ctx), token)
	}
	return err
}

func (m *Manager) revoke(ctx context.Context, token string) {
	defer m.pending.Done()
	ctx, cancel := context.WithTimeout(ctx, m.revokeTimeout)
	defer cancel()
	if err := m.api.Revoke(ctx, token); err != nil && !apiclient.IsUnauthorized(err) {
		m.logger.Debug("backend sign-out failed", zap.Error(err))
	}
}

// Wait blocks until background sign-outs finish or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for every state change. The returned func removes it.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// Close detaches the manager from the token store.
func (m *Manager) Close() {
	if m.unwatch != nil {
		m.unwatch()
	}
}

// tokensChanged follows the token store, including changes made by other contexts.
func (m *Manager) tokensChanged(snap tokenstore.Snapshot) {
	current := m.State().User
	switch {
	case !snap.LoggedIn() && current != nil:
		m.setUser(nil)
	case snap.LoggedIn() && snap.User != nil && !sameUser(current, snap.User):
		m.setUser(snap.User)
	}
}

func (m *Manager) setUser(user *domain.User) {
	m.update(func(s *State) { s.User = user })
}

func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	snap := m.state
	m.mu.Unlock()

	m.subsMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, f := range m.subs {
		fns = append(fns, f)
	}
	m.subsMu.Unlock()

	for _, f := range fns {
		f(snap)
	}
}

func sameUser(a, b *domain.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// IsSessionError reports whether err ended the session.
func IsSessionError(err error) bool {
	return apiclient.IsUnauthorized(err) || errors.Is(err, domain.ErrNotAuthenticated)
}
