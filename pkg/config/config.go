package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for verdant-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Ingestion threshold configuration
	Ingest IngestConfig `yaml:"ingest"`

	// Command queue configuration
	Command CommandConfig `yaml:"command"`

	// Watering schedule dispatcher configuration
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without the auth provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.verdant.dev=https://auth.verdant.dev/.well-known/jwks.json"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"verdant"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"verdant_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`

	// MigrationsPath is the directory containing SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// URL builds a connection string from the individual fields.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// IngestConfig holds the static thresholds used for alert derivation during
// sensor ingestion. The moisture default applies only to zones that do not
// carry their own threshold.
type IngestConfig struct {
	DefaultMoistureThreshold float64 `yaml:"default_moisture_threshold" env:"INGEST_DEFAULT_MOISTURE_THRESHOLD" env-default:"30"`
	HighTempThreshold        float64 `yaml:"high_temp_threshold" env:"INGEST_HIGH_TEMP_THRESHOLD" env-default:"35"`
	LowTempThreshold         float64 `yaml:"low_temp_threshold" env:"INGEST_LOW_TEMP_THRESHOLD" env-default:"5"`
}

// CommandConfig holds command queue settings.
type CommandConfig struct {
	// ClaimTimeout is how long a claimed command stays invisible to other
	// pollers before it is returned to pending.
	ClaimTimeout time.Duration `yaml:"claim_timeout" env:"COMMAND_CLAIM_TIMEOUT" env-default:"2m"`

	// DefaultPollLimit is the number of commands handed out per poll when the
	// caller does not specify one.
	DefaultPollLimit int `yaml:"default_poll_limit" env:"COMMAND_DEFAULT_POLL_LIMIT" env-default:"10"`
}

// SchedulerConfig holds watering schedule dispatcher settings.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`

	// StaleDeviceAfter is how long without a heartbeat before a device is
	// marked offline by the maintenance sweep.
	StaleDeviceAfter time.Duration `yaml:"stale_device_after" env:"SCHEDULER_STALE_DEVICE_AFTER" env-default:"10m"`
}

// Load reads configuration from config.yaml (if present) and the environment.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	cfg.Version = version

	endpoints, err := parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)
	if err != nil {
		return nil, err
	}
	cfg.Auth.JWKSEndpoints = endpoints

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification enabled but no JWKS endpoints configured")
	}
	if c.Ingest.DefaultMoistureThreshold < 0 || c.Ingest.DefaultMoistureThreshold > 100 {
		return fmt.Errorf("default moisture threshold must be a percentage, got %v", c.Ingest.DefaultMoistureThreshold)
	}
	if c.Command.ClaimTimeout <= 0 {
		return fmt.Errorf("command claim timeout must be positive")
	}
	return nil
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(s string) (map[string]string, error) {
	endpoints := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return endpoints, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid JWKS endpoint entry %q (want issuer=url)", pair)
		}
		endpoints[parts[0]] = parts[1]
	}
	return endpoints, nil
}
