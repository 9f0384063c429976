package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/moderation/internal/config"
	"github.com/jonesrussell/north-cloud/moderation/internal/database"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

// dbPingTimeout bounds each connection attempt.
const dbPingTimeout = 5 * time.Second

// Storage is the queue store and release log the service runs on.
type Storage struct {
	Store    queue.Store
	Releases queue.ReleaseLog
	close    func() error
}

// Close releases the backing connection, if any.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// SetupStorage builds the configured backend. Postgres is retried while it
// reports itself unavailable, then migrated when auto_migrate is set.
func SetupStorage(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*Storage, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("Using in-memory queue store; items are lost on restart")
		return &Storage{Store: queue.NewMemoryStore(), Releases: queue.NewMemoryReleaseLog()}, nil
	}

	db, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.AutoMigrate {
		if migrateErr := database.RunMigrations(db.DB, cfg.Storage.MigrationsPath, log); migrateErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", migrateErr)
		}
	}

	return &Storage{
		Store:    database.NewStore(db),
		Releases: database.NewReleaseLog(db),
		close:    db.Close,
	}, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*sqlx.DB, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Storage.ConnectAttempts
	retryCfg.IsRetryable = domain.IsRetryable

	var db *sqlx.DB
	attempt := 0
	err := retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()

		conn, connErr := database.NewPostgresConnection(pingCtx, cfg.Database)
		if connErr != nil {
			log.Warn("Database not ready",
				infralogger.Int("attempt", attempt),
				infralogger.Error(connErr),
			)
			return connErr
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}

	log.Info("Database connected",
		infralogger.String("host", cfg.Database.Host),
		infralogger.Int("port", cfg.Database.Port),
		infralogger.String("database", cfg.Database.Database),
	)
	return db, nil
}
