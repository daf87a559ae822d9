// Package config provides configuration management for Stratum.
// Settings come from three layers, each overriding the one below:
// environment variables with the STRATUM_ prefix, an optional YAML
// file named by STRATUM_CONFIG_FILE (or the -config flag), and
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Stratum application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Engine   EngineConfig   `yaml:"engine"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7373)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)

	// RateLimit is the sustained request rate per client (default: 50/s).
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the per-client burst allowance (default: 100).
	RateBurst int `yaml:"rate_burst"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	// DataPath is the data directory holding the SQLite file and the
	// events directory (default: ./data).
	DataPath string `yaml:"data_path"`

	// ArchiveBackend selects where cold chunks live: "sqlite" keeps
	// them in the main database, "postgres" uses ArchiveDSN
	// (default: sqlite).
	ArchiveBackend string `yaml:"archive_backend"`

	// ArchiveDSN is the PostgreSQL connection string used when
	// ArchiveBackend is "postgres".
	ArchiveDSN string `yaml:"archive_dsn"`
}

// EngineConfig contains tier controller tuning.
type EngineConfig struct {
	HotCapacity    int           `yaml:"hot_capacity"`    // per-owner hot cache size (default: 50)
	HotWindow      time.Duration `yaml:"hot_window"`      // hot recency window (default: 30m)
	WarmThreshold  float64       `yaml:"warm_threshold"`  // promotion threshold (default: 5.0)
	RetentionFloor float64       `yaml:"retention_floor"` // archival floor (default: 2.5)
	WarmRetention  time.Duration `yaml:"warm_retention"`  // warm lifetime (default: 168h)
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // background sweep period (default: 5m)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	// SecurityMode is "development" or "production". Production
	// requires a bearer token on API requests (default: development).
	SecurityMode string `yaml:"security_mode"`

	// APIToken is the bearer token checked in production mode.
	APIToken string `yaml:"api_token"`
}

// LoadConfig loads configuration from the default file location (if
// any) and environment variables.
func LoadConfig() (*Config, error) {
	return LoadConfigFromFile(os.Getenv("STRATUM_CONFIG_FILE"))
}

// LoadConfigFromFile loads configuration with an explicit YAML file
// path. An empty path skips the file layer; a named file that does not
// exist is an error. Environment variables override file values.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that the layering can break.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	switch c.Storage.ArchiveBackend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.Storage.ArchiveBackend)
	}
	if c.Storage.ArchiveBackend == "postgres" && c.Storage.ArchiveDSN == "" {
		return fmt.Errorf("config: postgres archive backend requires STRATUM_ARCHIVE_DSN")
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production mode requires STRATUM_API_TOKEN")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      7373,
			Host:      "127.0.0.1",
			RateLimit: 50,
			RateBurst: 100,
		},
		Storage: StorageConfig{
			DataPath:       "./data",
			ArchiveBackend: "sqlite",
		},
		Engine: EngineConfig{
			HotCapacity:    50,
			HotWindow:      30 * time.Minute,
			WarmThreshold:  5.0,
			RetentionFloor: 2.5,
			WarmRetention:  168 * time.Hour,
			SweepInterval:  5 * time.Minute,
		},
		Security: SecurityConfig{
			SecurityMode: "development",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("STRATUM_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("STRATUM_HOST", cfg.Server.Host)
	cfg.Server.RateLimit = getEnvFloat("STRATUM_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RateBurst = getEnvInt("STRATUM_RATE_BURST", cfg.Server.RateBurst)

	cfg.Storage.DataPath = getEnv("STRATUM_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.ArchiveBackend = getEnv("STRATUM_ARCHIVE_BACKEND", cfg.Storage.ArchiveBackend)
	cfg.Storage.ArchiveDSN = getEnv("STRATUM_ARCHIVE_DSN", cfg.Storage.ArchiveDSN)

	cfg.Engine.HotCapacity = getEnvInt("STRATUM_HOT_CAPACITY", cfg.Engine.HotCapacity)
	cfg.Engine.HotWindow = getEnvDuration("STRATUM_HOT_WINDOW", cfg.Engine.HotWindow)
	cfg.Engine.WarmThreshold = getEnvFloat("STRATUM_WARM_THRESHOLD", cfg.Engine.WarmThreshold)
	cfg.Engine.RetentionFloor = getEnvFloat("STRATUM_RETENTION_FLOOR", cfg.Engine.RetentionFloor)
	cfg.Engine.WarmRetention = getEnvDuration("STRATUM_WARM_RETENTION", cfg.Engine.WarmRetention)
	cfg.Engine.SweepInterval = getEnvDuration("STRATUM_SWEEP_INTERVAL", cfg.Engine.SweepInterval)

	cfg.Security.SecurityMode = getEnv("STRATUM_SECURITY_MODE", cfg.Security.SecurityMode)
	cfg.Security.APIToken = getEnv("STRATUM_API_TOKEN", cfg.Security.APIToken)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value. An unparseable value falls back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a
// default value. An unparseable value falls back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30m",
// "168h") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
