package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BackendChecker calls the backend health endpoint.
type BackendChecker interface {
	HealthCheck(ctx context.Context) (map[string]any, error)
}

type Monitor struct {
	backend BackendChecker
	redis   *redislib.Client

	status   Status
	mu       sync.RWMutex
	cron     *cron.Cron
	stopOnce sync.Once
	logger   *zap.Logger
}

// New creates a monitor. redis may be nil when the gateway runs without it.
func New(backend BackendChecker, redis *redislib.Client, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		backend: backend,
		redis:   redis,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
	}
	schedule := fmt.Sprintf("@every %s", interval)
	if _, err := m.cron.AddFunc(schedule, m.refresh); err != nil {
		logger.Error("invalid health check schedule", zap.String("schedule", schedule), zap.Error(err))
	}
	return m
}

// Start probes once right away, then on every interval.
func (m *Monitor) Start() {
	go m.refresh()
	m.cron.Start()
}

// Stop halts the schedule and waits for a running probe, bounded by ctx.
func (m *Monitor) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		stopCtx := m.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	})
}

// IsOnline reports whether the backend answered the last probe.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Backend
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) refresh() {
	status := m.checkBackend()
	status.RedisEnabled = m.redis != nil
	status.Redis = m.checkRedis()
	status.LastCheck = time.Now()

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.Backend != status.Backend {
		if status.Backend {
			m.logger.Info("backend is reachable again")
		} else {
			m.logger.Warn("backend became unreachable", zap.String("error", status.BackendError))
		}
	}
}

func (m *Monitor) checkBackend() Status {
	var status Status
	if m.backend == nil {
		status.BackendError = "backend checker not configured"
		return status
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	payload, err := m.backend.HealthCheck(ctx)
	status.BackendLatency = time.Since(start)
	if err != nil {
		status.BackendError = err.Error()
		return status
	}
	status.Backend = true
	if s, ok := payload["status"]; ok {
		status.BackendStatus = fmt.Sprint(s)
	}
	return status
}

func (m *Monitor) checkRedis() bool {
	if m.redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.redis.Ping(ctx).Err() == nil
}
