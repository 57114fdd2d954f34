package permissions

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel carrying invalidation events.
const DefaultChannel = "permissions.bump"

// fullRefresh is published when every user should be re-fetched.
const fullRefresh = "*"

// Publisher announces that stored grants changed.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID) error
	PublishAll(ctx context.Context) error
}

// Notifier fans grant changes out to every dashboard instance over Redis
// pub/sub so their directories re-fetch.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier constructs a Notifier on channel, or DefaultChannel when empty.
func NewNotifier(client *redis.Client, channel string, logger *slog.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Channel returns the pub/sub channel name.
func (n *Notifier) Channel() string {
	return n.channel
}

// Publish announces a change to one user's grants.
func (n *Notifier) Publish(ctx context.Context, userID uuid.UUID) error {
	if n == nil || n.client == nil {
		return nil
	}
	return n.client.Publish(ctx, n.channel, userID.String()).Err()
}

// PublishAll asks every listener for a full re-fetch.
func (n *Notifier) PublishAll(ctx context.Context) error {
	if n == nil || n.client == nil {
		return nil
	}
	return n.client.Publish(ctx, n.channel, fullRefresh).Err()
}

// Listen subscribes to the channel and calls onChange for every event until
// ctx is done. The subscription is confirmed before Listen returns. A nil
// userID means every user changed.
func (n *Notifier) Listen(ctx context.Context, onChange func(ctx context.Context, userID *uuid.UUID)) error {
	if n == nil || n.client == nil {
		return nil
	}
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == fullRefresh {
					onChange(ctx, nil)
					continue
				}
				id, err := uuid.Parse(msg.Payload)
				if err != nil {
					n.logger.Warn("permissions invalidation payload", slog.String("payload", msg.Payload))
					onChange(ctx, nil)
					continue
				}
				onChange(ctx, &id)
			}
		}
	}()
	return nil
}

var _ Publisher = (*Notifier)(nil)
