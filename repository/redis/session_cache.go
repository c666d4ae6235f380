package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/repository"
)

type sessionCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewSessionCache creates a Redis-backed cache of validated sessions.
// Tokens are hashed before use as keys so raw credentials never reach redis.
func NewSessionCache(client *redislib.Client, ttl time.Duration) repository.SessionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &sessionCache{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}
}

func (c *sessionCache) Get(ctx context.Context, token string) (*domain.User, error) {
	result, err := c.client.Get(ctx, c.key(token)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var user domain.User
	if err := json.Unmarshal([]byte(result), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *sessionCache) Save(ctx context.Context, token string, user *domain.User, ttl time.Duration) error {
	if token == "" || user == nil {
		return domain.ErrInvalidPayload
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(token), payload, ttl).Err()
}

func (c *sessionCache) Delete(ctx context.Context, token string) error {
	return c.client.Del(ctx, c.key(token)).Err()
}

func (c *sessionCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(sum[:])
}
