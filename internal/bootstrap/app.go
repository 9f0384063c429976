// Package bootstrap handles application initialization and lifecycle management
// for the moderation service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/moderation/internal/moderation"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
	"github.com/jonesrussell/north-cloud/moderation/internal/telemetry"
)

// Start initializes and runs the moderation service until ctx is cancelled
// or the process receives a shutdown signal.
func Start(ctx context.Context) error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Moderation Service",
		infralogger.String("name", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
		infralogger.Int("port", cfg.Service.Port),
		infralogger.String("storage", cfg.Storage.Driver),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if pprofServer := profiling.Start(cfg.Profiling, log); pprofServer != nil {
		defer func() { _ = pprofServer.Close() }()
	}

	// Phase 2: Storage
	storage, err := SetupStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to setup storage: %w", err)
	}
	defer func() {
		if closeErr := storage.Close(); closeErr != nil {
			log.Error("Failed to close storage", infralogger.Error(closeErr))
		}
	}()

	// Phase 3: Policy
	policies, err := SetupPolicy(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to setup policy: %w", err)
	}

	// Phase 4: Notifications
	notifications := SetupNotifications(ctx, cfg, log)
	defer notifications.Close()

	// Phase 5: Service
	tel := telemetry.NewProvider()
	svc := moderation.New(moderation.Deps{
		Store:     storage.Store,
		Releases:  storage.Releases,
		Policies:  policies,
		Notifier:  notifications.Notifier,
		Telemetry: tel,
		Logger:    log,
	})

	if cfg.Policy.Watch {
		if watchErr := startPolicyWatcher(ctx, policies, svc, log); watchErr != nil {
			return fmt.Errorf("failed to watch policy: %w", watchErr)
		}
	}

	// Phase 6: HTTP server
	server := SetupHTTPServer(cfg, svc, tel, notifications.Stream, log)
	if runErr := server.RunWithGracefulShutdown(ctx); runErr != nil {
		log.Error("Server error", infralogger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Moderation Service stopped")
	return nil
}

func startPolicyWatcher(ctx context.Context, policies *policy.Store, svc *moderation.Service, log infralogger.Logger) error {
	w, err := policy.NewWatcher(policies, log, svc.OnPolicyReload)
	if errors.Is(err, policy.ErrNoPolicyFile) {
		log.Warn("Policy watch requested without a policy file")
		return nil
	}
	if err != nil {
		return err
	}

	go w.Run(ctx)
	log.Info("Watching policy file", infralogger.String("path", policies.Path()))
	return nil
}
