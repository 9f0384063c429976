package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" //nolint:blankimports // file source driver

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
)

// RunMigrations applies every pending migration found in dir.
func RunMigrations(db *sql.DB, dir string, log logger.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	if absPath, absErr := filepath.Abs(dir); absErr == nil {
		dir = absPath
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No pending migrations", logger.String("migrations_path", dir))
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	log.Info("Migrations applied", logger.String("migrations_path", dir))
	return nil
}
