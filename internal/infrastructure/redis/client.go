package redis

import (
	"context"
	"time"

	goRedis "github.com/redis/go-redis/v9"

	"github.com/fastygo/deadlines/internal/config"
)

// NewClient creates a Redis client and performs a health check.
// It returns nil, nil when redis is not configured; callers treat that as "feature off".
func NewClient(cfg config.RedisConfig) (*goRedis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := goRedis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
