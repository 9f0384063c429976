// Package notify publishes moderation events to downstream subscribers.
// Delivery is best-effort: a failed publish never affects the operation that
// produced the event.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/events"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
)

// Notifier publishes moderation events.
type Notifier interface {
	Publish(ctx context.Context, event events.ModerationEvent) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(context.Context, events.ModerationEvent) error { return nil }

// Fanout publishes every event to each notifier in order. Every notifier is
// tried; their errors are joined.
type Fanout []Notifier

// Publish implements Notifier.
func (f Fanout) Publish(ctx context.Context, event events.ModerationEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publisher is the slice of the redis client the notifier needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes JSON events on a Redis pub/sub channel. Repeated
// failures open a circuit breaker so a dead Redis costs nothing per call.
type RedisNotifier struct {
	client  publisher
	channel string
	breaker *circuitbreaker.Breaker
	log     logger.Logger
}

// Options tunes a RedisNotifier.
type Options struct {
	Channel          string
	FailureThreshold int
	Cooldown         time.Duration
}

// NewRedisNotifier creates a notifier over client.
func NewRedisNotifier(client publisher, opts Options, log logger.Logger) *RedisNotifier {
	if opts.Channel == "" {
		opts.Channel = events.DefaultChannel
	}
	n := &RedisNotifier{client: client, channel: opts.Channel, log: log}
	n.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: opts.FailureThreshold,
		Cooldown:         opts.Cooldown,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.Warn("Notification circuit changed state",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
				logger.String("channel", n.channel),
			)
		},
	})
	return n
}

// Publish implements Notifier.
func (n *RedisNotifier) Publish(ctx context.Context, event events.ModerationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = n.breaker.Execute(func() error {
		return n.client.Publish(ctx, n.channel, payload).Err()
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}
