package bootstrap

import (
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/config"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
)

// SetupPolicy loads the configured policy file, or the built-in policy when
// no path is set. A file that fails to load or validate stops startup.
func SetupPolicy(cfg *config.Config, log infralogger.Logger) (*policy.Store, error) {
	pol := policy.Default()
	if cfg.Policy.Path != "" {
		loaded, err := policy.LoadFile(cfg.Policy.Path)
		if err != nil {
			return nil, fmt.Errorf("load policy %s: %w", cfg.Policy.Path, err)
		}
		pol = loaded
	}

	store, err := policy.NewStore(pol, cfg.Policy.Path)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}

	source := cfg.Policy.Path
	if source == "" {
		source = "builtin"
	}
	log.Info("Policy loaded",
		infralogger.String("version", store.Current().Version()),
		infralogger.String("source", source),
		infralogger.Int("categories", len(pol.Categories)),
	)
	return store, nil
}
