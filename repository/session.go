package repository

import (
	"context"
	"time"

	"github.com/fastygo/deadlines/domain"
)

// SessionCache remembers which bearer tokens the backend recently accepted.
type SessionCache interface {
	Get(ctx context.Context, token string) (*domain.User, error)
	Save(ctx context.Context, token string, user *domain.User, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}
