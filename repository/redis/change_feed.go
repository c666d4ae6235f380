package redis

import (
	"context"
	"encoding/json"
	"fmt"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/deadlines/repository"
)

type changeFeed struct {
	client  *redislib.Client
	channel string
	logger  *zap.Logger
}

// NewChangeFeed publishes storage changes on a per-profile pub/sub channel.
func NewChangeFeed(client *redislib.Client, profile string, logger *zap.Logger) repository.ChangeFeed {
	if profile == "" {
		profile = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &changeFeed{
		client:  client,
		channel: fmt.Sprintf("storage:%s:changes", profile),
		logger:  logger,
	}
}

func (f *changeFeed) Publish(ctx context.Context, change repository.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

func (f *changeFeed) Subscribe(ctx context.Context) (<-chan repository.Change, error) {
	sub := f.client.Subscribe(ctx, f.channel)
	// Receive blocks until the subscription is confirmed so no change published
	// right after Subscribe returns is lost.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan repository.Change)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change repository.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Warn("malformed storage change", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
