package repository

import "context"

// Keys the token store keeps in durable storage.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// LocalStorage is a durable string key/value store scoped to one client context,
// the equivalent of a browser's local storage.
type LocalStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Change announces that a storage key was written by some context.
type Change struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// ChangeFeed fans storage changes out to every context sharing the same storage.
type ChangeFeed interface {
	Publish(ctx context.Context, change Change) error
	// Subscribe delivers changes until ctx is cancelled; the channel is closed afterwards.
	Subscribe(ctx context.Context) (<-chan Change, error)
}
