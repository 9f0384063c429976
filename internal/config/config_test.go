package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, defaultServiceName, cfg.Service.Name)
	assert.Equal(t, defaultVersion, cfg.Service.Version)
	assert.Equal(t, defaultServicePort, cfg.Service.Port)
	assert.Equal(t, defaultDBName, cfg.Database.Database)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, defaultMigrationsPath, cfg.Storage.MigrationsPath)
	assert.Equal(t, defaultConnectAttempts, cfg.Storage.ConnectAttempts)
	assert.Equal(t, defaultFailureThreshold, cfg.Notifications.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Notifications.Cooldown)
	assert.Equal(t, defaultStreamMaxClients, cfg.Stream.MaxClients)
	assert.False(t, cfg.Stream.Enabled)
	assert.Equal(t, "6060", cfg.Profiling.Port)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:   "memory store skips database checks",
			mutate: func(c *Config) { c.Storage.Driver = StorageMemory; c.Database.Host = "" },
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Service.Port = 70000 },
			wantErr: "service.port: must be between 1 and 65535",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "sqlite" },
			wantErr: `storage.driver: must be "postgres" or "memory", got "sqlite"`,
		},
		{
			name:    "postgres needs a host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database.host: is required",
		},
		{
			name:    "watch without a path",
			mutate:  func(c *Config) { c.Policy.Watch = true },
			wantErr: "policy.path: is required when policy.watch is enabled",
		},
		{
			name:    "notifications need redis",
			mutate:  func(c *Config) { c.Notifications.Enabled = true; c.Redis.Address = "" },
			wantErr: "redis.address: is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level: must be one of: debug, info, warn, error, fatal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{}
			setDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_ReadsYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
service:
  port: 9000
storage:
  driver: memory
policy:
  path: /etc/moderation/policy.yml
  watch: true
cors:
  enabled: true
  allowed_origins: ["https://review.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("MODERATION_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Service.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Policy.Watch)
	assert.Equal(t, []string{"https://review.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, defaultServiceName, cfg.Service.Name)
	require.NoError(t, cfg.Validate())
}
