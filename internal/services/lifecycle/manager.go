package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc describes a graceful shutdown callback.
type ShutdownFunc func(ctx context.Context) error

// WorkerFunc runs until ctx is cancelled. Returning context.Canceled is a clean exit.
type WorkerFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Manager owns the process context: it runs background workers, stops everything
// when a signal arrives or a worker fails, and then runs shutdown hooks.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	hooks []hook

	workers  sync.WaitGroup
	errMu    sync.Mutex
	firstErr error
}

// New creates a lifecycle manager with the desired shutdown timeout.
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context is cancelled when the process should stop.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Stop cancels the process context.
func (m *Manager) Stop() {
	m.cancel()
}

// Register adds a shutdown hook. Hooks are executed in reverse order.
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Go runs fn in the background. A worker failure stops the whole process.
func (m *Manager) Go(name string, fn WorkerFunc) {
	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		err := fn(m.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			m.logger.Debug("worker exited", zap.String("worker", name))
			return
		}
		m.logger.Error("worker failed", zap.String("worker", name), zap.Error(err))
		m.errMu.Lock()
		if m.firstErr == nil {
			m.firstErr = fmt.Errorf("%s: %w", name, err)
		}
		m.errMu.Unlock()
		m.cancel()
	}()
}

// Listen cancels the process context on SIGINT or SIGTERM.
func (m *Manager) Listen() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			m.cancel()
		case <-m.ctx.Done():
		}
	}()
}

// Wait blocks until the process context is cancelled and returns the first worker error.
func (m *Manager) Wait() error {
	<-m.ctx.Done()
	return m.Err()
}

// Err returns the first worker failure, if any.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.firstErr
}

// Shutdown cancels the workers, runs all hooks and waits for the workers to exit,
// all within the configured timeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.cancel()

	m.mu.Lock()
	hooks := append([]hook(nil), m.hooks...)
	m.hooks = nil
	m.mu.Unlock()

	var result error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		started := time.Now()
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Info("component stopped", zap.String("component", h.name), zap.Duration("took", time.Since(started)))
	}

	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		result = errors.Join(result, fmt.Errorf("workers still running: %w", ctx.Err()))
	}
	return result
}
