package config

import (
	"fmt"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/moderation/infrastructure/config"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/profiling"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Default configuration values.
const (
	defaultServiceName    = "moderation"
	defaultServicePort    = 8097
	defaultVersion        = "0.1.0"
	defaultDBName         = "moderation"
	defaultStorageDriver  = StoragePostgres
	defaultMigrationsPath = "migrations"

	defaultConnectAttempts  = 10
	defaultFailureThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultStreamMaxClients = 200
)

// Config holds the application configuration.
type Config struct {
	Service       ServiceConfig              `yaml:"service"`
	Database      infraconfig.DatabaseConfig `yaml:"database"`
	Redis         infraconfig.RedisConfig    `yaml:"redis"`
	Logging       infraconfig.LoggingConfig  `yaml:"logging"`
	Auth          AuthConfig                 `yaml:"auth"`
	Storage       StorageConfig              `yaml:"storage"`
	Policy        PolicyConfig               `yaml:"policy"`
	Notifications NotificationsConfig        `yaml:"notifications"`
	Stream        StreamConfig               `yaml:"stream"`
	CORS          CORSConfig                 `yaml:"cors"`
	Profiling     profiling.Config           `yaml:"profiling"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"MODERATION_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"       yaml:"debug"`
}

// AuthConfig holds moderator authentication settings. An empty secret
// selects trusted-gateway mode, where identity comes from request headers.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"` //nolint:gosec // G117: auth config
}

// StorageConfig selects the queue store backend.
type StorageConfig struct {
	Driver          string `env:"MODERATION_STORAGE"      yaml:"driver"`
	AutoMigrate     bool   `env:"MODERATION_AUTO_MIGRATE" yaml:"auto_migrate"`
	MigrationsPath  string `yaml:"migrations_path"`
	ConnectAttempts int    `yaml:"connect_attempts"`
}

// PolicyConfig locates the policy file.
type PolicyConfig struct {
	// Path may be empty to run on the built-in policy.
	Path  string `env:"MODERATION_POLICY_PATH"  yaml:"path"`
	Watch bool   `env:"MODERATION_POLICY_WATCH" yaml:"watch"`
}

// NotificationsConfig controls redis pub/sub event publishing.
type NotificationsConfig struct {
	Enabled          bool          `env:"MODERATION_NOTIFICATIONS_ENABLED" yaml:"enabled"`
	Channel          string        `yaml:"channel"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// StreamConfig controls the server-sent event stream for dashboards.
type StreamConfig struct {
	Enabled    bool `env:"MODERATION_STREAM_ENABLED" yaml:"enabled"`
	MaxClients int  `yaml:"max_clients"`
}

// CORSConfig holds the CORS settings passed to the HTTP server.
type CORSConfig struct {
	Enabled        bool     `env:"CORS_ENABLED"         yaml:"enabled"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"allowed_origins"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	if cfg.Database.Database == "" {
		cfg.Database.Database = defaultDBName
	}
	cfg.Database.SetDefaults()
	cfg.Redis.SetDefaults()
	cfg.Logging.SetDefaults()
	setStorageDefaults(&cfg.Storage)
	setNotificationDefaults(&cfg.Notifications)
	if cfg.Stream.MaxClients == 0 {
		cfg.Stream.MaxClients = defaultStreamMaxClients
	}
	if cfg.Profiling.Port == "" {
		cfg.Profiling.Port = profiling.DefaultPort
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
}

func setStorageDefaults(s *StorageConfig) {
	if s.Driver == "" {
		s.Driver = defaultStorageDriver
	}
	if s.MigrationsPath == "" {
		s.MigrationsPath = defaultMigrationsPath
	}
	if s.ConnectAttempts == 0 {
		s.ConnectAttempts = defaultConnectAttempts
	}
}

func setNotificationDefaults(n *NotificationsConfig) {
	if n.FailureThreshold == 0 {
		n.FailureThreshold = defaultFailureThreshold
	}
	if n.Cooldown == 0 {
		n.Cooldown = defaultBreakerCooldown
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case StoragePostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	case StorageMemory:
	default:
		return &infraconfig.ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Driver),
		}
	}

	if c.Policy.Watch && c.Policy.Path == "" {
		return &infraconfig.ValidationError{
			Field:   "policy.path",
			Message: "is required when policy.watch is enabled",
		}
	}
	if c.Notifications.Enabled {
		if err := infraconfig.ValidateRequired("redis.address", c.Redis.Address); err != nil {
			return err
		}
	}
	return nil
}
