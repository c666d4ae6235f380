package redis

import (
	"context"
	"errors"
	"fmt"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/repository"
)

type storage struct {
	client *redislib.Client
	key    string
}

// NewStorage creates a redis-backed local storage. Every key of a profile lives
// in one hash so a logout clears them atomically.
func NewStorage(client *redislib.Client, profile string) repository.LocalStorage {
	if profile == "" {
		profile = "default"
	}
	return &storage{
		client: client,
		key:    fmt.Sprintf("storage:%s", profile),
	}
}

func (s *storage) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.HGet(ctx, s.key, key).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", domain.ErrKeyNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *storage) Set(ctx context.Context, key, value string) error {
	return s.client.HSet(ctx, s.key, key, value).Err()
}

func (s *storage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.HDel(ctx, s.key, keys...).Err()
}
