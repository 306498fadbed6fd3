// Package config loads epibot settings from a YAML file with EPIBOT_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all epibot configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Session SessionConfig `yaml:"session"`
	Limits  LimitsConfig  `yaml:"limits"`
	Links   LinksConfig   `yaml:"links"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects where exports are written.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs, s3, memory
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the S3 blob driver. Empty credentials fall back to the
// default AWS credential chain.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// SessionConfig controls idle expiry of conversations.
type SessionConfig struct {
	IdleTTL       string `yaml:"idle_ttl"` // "0" disables expiry
	SweepInterval string `yaml:"sweep_interval"`
}

// LimitsConfig bounds per-user work.
type LimitsConfig struct {
	ActionsPerSecond float64 `yaml:"actions_per_second"` // 0 (default) disables the flood guard; excess actions are rejected
	Burst            int     `yaml:"burst"`
	StoreTimeout     string  `yaml:"store_timeout"`
	SearchLimit      int     `yaml:"search_limit"`
}

// LinksConfig lists accepted reference link prefixes.
type LinksConfig struct {
	Prefixes []string `yaml:"prefixes,omitempty"`
}

// ExportConfig configures the record export worker.
type ExportConfig struct {
	Prefix    string `yaml:"prefix"`
	QueueSize int    `yaml:"queue_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, console
	Development bool   `yaml:"development"`
}

// MetricsConfig configures the metrics endpoint served by `epibot serve`.
type MetricsConfig struct {
	Addr       string `yaml:"addr"` // empty disables the endpoint
	ExpvarName string `yaml:"expvar_name"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "epibot.db",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./exports",
			S3:     S3Config{Region: "us-east-1"},
		},
		Session: SessionConfig{
			IdleTTL:       "24h",
			SweepInterval: "5m",
		},
		Limits: LimitsConfig{
			Burst:        10,
			StoreTimeout: "5s",
			SearchLimit:  20,
		},
		Export: ExportConfig{
			Prefix:    "exports/",
			QueueSize: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr:       ":9090",
			ExpvarName: "epibot_actions",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies EPIBOT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setString("EPIBOT_STORAGE_DRIVER", &c.Storage.Driver)
	setString("EPIBOT_SQLITE_PATH", &c.Storage.SQLitePath)
	setString("EPIBOT_POSTGRES_DSN", &c.Storage.PostgresDSN)

	setString("EPIBOT_BLOB_DRIVER", &c.Blob.Driver)
	setString("EPIBOT_BLOB_FS_ROOT", &c.Blob.FSRoot)
	setString("EPIBOT_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	setString("EPIBOT_BLOB_S3_REGION", &c.Blob.S3.Region)
	setString("EPIBOT_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	setString("EPIBOT_BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	setString("EPIBOT_BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	if v := os.Getenv("EPIBOT_BLOB_S3_PATH_STYLE"); v != "" {
		c.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}

	setString("EPIBOT_SESSION_IDLE_TTL", &c.Session.IdleTTL)
	if v := os.Getenv("EPIBOT_ACTIONS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Limits.ActionsPerSecond = f
		}
	}
	setString("EPIBOT_STORE_TIMEOUT", &c.Limits.StoreTimeout)
	setString("EPIBOT_LOG_LEVEL", &c.Logging.Level)
	setString("EPIBOT_LOG_FORMAT", &c.Logging.Format)
	setString("EPIBOT_METRICS_ADDR", &c.Metrics.Addr)
}

// GetIdleTTL returns the session idle TTL; zero disables expiry.
func (c *Config) GetIdleTTL() time.Duration {
	return parseDuration(c.Session.IdleTTL, 24*time.Hour)
}

// GetSweepInterval returns how often idle sessions are evicted.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDuration(c.Session.SweepInterval, 5*time.Minute)
}

// GetStoreTimeout returns the per-call record store timeout.
func (c *Config) GetStoreTimeout() time.Duration {
	return parseDuration(c.Limits.StoreTimeout, 5*time.Second)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Valid driver names.
var (
	ValidStorageDrivers = []string{"memory", "sqlite", "postgres"}
	ValidBlobDrivers    = []string{"fs", "s3", "memory"}
	ValidLogLevels      = []string{"debug", "info", "warn", "error"}
	ValidLogFormats     = []string{"json", "console"}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidStorageDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidStorageDrivers)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres driver requires storage.postgres_dsn (or EPIBOT_POSTGRES_DSN)")
	}
	if !contains(ValidBlobDrivers, c.Blob.Driver) {
		return fmt.Errorf("invalid blob driver: %s (valid: %v)", c.Blob.Driver, ValidBlobDrivers)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("s3 blob driver requires blob.s3.bucket (or EPIBOT_BLOB_S3_BUCKET)")
	}
	for name, v := range map[string]string{
		"session.idle_ttl":       c.Session.IdleTTL,
		"session.sweep_interval": c.Session.SweepInterval,
		"limits.store_timeout":   c.Limits.StoreTimeout,
	} {
		if v == "0" || v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("invalid duration for %s: %q", name, v)
		}
	}
	if c.Limits.ActionsPerSecond < 0 {
		return fmt.Errorf("limits.actions_per_second must not be negative")
	}
	if c.Limits.SearchLimit < 1 || c.Limits.SearchLimit > 20 {
		return fmt.Errorf("limits.search_limit must be between 1 and 20, got %d", c.Limits.SearchLimit)
	}
	if !contains(ValidLogLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	if c.Export.QueueSize < 1 {
		return fmt.Errorf("export.queue_size must be positive")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
