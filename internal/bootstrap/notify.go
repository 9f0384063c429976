package bootstrap

import (
	"context"

	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/moderation/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/moderation/internal/config"
	"github.com/jonesrussell/north-cloud/moderation/internal/notify"
)

// Notifications is the event fan-out the service publishes to.
type Notifications struct {
	Notifier notify.Notifier
	// Stream is nil unless the dashboard stream is enabled.
	Stream  *sse.Broker
	closers []func() error
}

// Close shuts the stream and the redis client down.
func (n *Notifications) Close() {
	if n.Stream != nil {
		n.Stream.Close()
	}
	for _, c := range n.closers {
		_ = c()
	}
}

// SetupNotifications builds the redis publisher and the SSE broker as
// configured. An unreachable Redis degrades to no redis events rather than
// failing startup.
func SetupNotifications(ctx context.Context, cfg *config.Config, log infralogger.Logger) *Notifications {
	n := &Notifications{}
	var fan notify.Fanout

	if cfg.Notifications.Enabled {
		if redisNotifier, closeRedis := setupRedisNotifier(ctx, cfg, log); redisNotifier != nil {
			fan = append(fan, redisNotifier)
			n.closers = append(n.closers, closeRedis)
		}
	} else {
		log.Info("Redis event notifications disabled")
	}

	if cfg.Stream.Enabled {
		n.Stream = sse.NewBroker(log, sse.WithMaxClients(cfg.Stream.MaxClients))
		fan = append(fan, n.Stream)
		log.Info("Dashboard event stream enabled", infralogger.Int("max_clients", cfg.Stream.MaxClients))
	}

	switch len(fan) {
	case 0:
		n.Notifier = notify.Nop{}
	case 1:
		n.Notifier = fan[0]
	default:
		n.Notifier = fan
	}
	return n
}

func setupRedisNotifier(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*notify.RedisNotifier, func() error) {
	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, event notifications disabled",
			infralogger.String("address", cfg.Redis.Address),
			infralogger.Error(err),
		)
		return nil, nil
	}

	log.Info("Redis event notifications enabled",
		infralogger.String("address", cfg.Redis.Address),
		infralogger.String("channel", cfg.Notifications.Channel),
	)
	return notify.NewRedisNotifier(client, notify.Options{
		Channel:          cfg.Notifications.Channel,
		FailureThreshold: cfg.Notifications.FailureThreshold,
		Cooldown:         cfg.Notifications.Cooldown,
	}, log), client.Close
}
