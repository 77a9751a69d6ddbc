// Package config loads runtime configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names a kv.Store implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

// Config holds the settings shared by every command.
type Config struct {
	KV        KVConfig
	Store     StoreConfig
	Batch     BatchConfig
	OutputDir string
	Analytics AnalyticsConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// KVConfig selects and configures the key/value backend.
type KVConfig struct {
	Backend     Backend
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisKey    string
	QuotaBytes  int64

	// Postgres pool sizing.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StoreConfig tunes the history/settings store.
type StoreConfig struct {
	CacheTTL        time.Duration
	HistoryMax      int
	DuplicateWindow time.Duration
}

// BatchConfig holds scheduler defaults.
type BatchConfig struct {
	Concurrency   int
	RetryAttempts int
	RetryDelay    time.Duration
	TaskTimeout   time.Duration
	// LeaseTTL is how long a running job stays claimed without renewal.
	LeaseTTL time.Duration
}

// AnalyticsConfig controls usage analytics.
type AnalyticsConfig struct {
	Enabled   bool
	Retention time.Duration
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads envFilePath if it exists, then the environment.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		KV: KVConfig{
			Backend:     Backend(strings.ToLower(getEnv("QRJOBS_KV_BACKEND", string(BackendSQLite)))),
			SQLitePath:  getEnv("QRJOBS_SQLITE_PATH", "qrjobs.db"),
			DatabaseURL: getEnv("QRJOBS_DATABASE_URL", ""),
			RedisAddr:   getEnv("QRJOBS_REDIS_ADDR", "127.0.0.1:6379"),
			RedisKey:    getEnv("QRJOBS_REDIS_KEY", "qrjobs:kv"),
			QuotaBytes:  getEnvAsInt64("QRJOBS_KV_QUOTA_BYTES", 5<<20),

			MaxOpenConns:    getEnvAsInt("QRJOBS_DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("QRJOBS_DB_MAX_IDLE_CONNS", 4),
			ConnMaxLifetime: getEnvAsDuration("QRJOBS_DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Store: StoreConfig{
			CacheTTL:        getEnvAsDuration("QRJOBS_CACHE_TTL", 5*time.Second),
			HistoryMax:      getEnvAsInt("QRJOBS_HISTORY_MAX", 100),
			DuplicateWindow: getEnvAsDuration("QRJOBS_DUPLICATE_WINDOW", time.Minute),
		},
		Batch: BatchConfig{
			Concurrency:   getEnvAsInt("QRJOBS_CONCURRENCY", 3),
			RetryAttempts: getEnvAsInt("QRJOBS_RETRY_ATTEMPTS", 2),
			RetryDelay:    getEnvAsDuration("QRJOBS_RETRY_DELAY", time.Second),
			TaskTimeout:   getEnvAsDuration("QRJOBS_TASK_TIMEOUT", 10*time.Second),
			LeaseTTL:      getEnvAsDuration("QRJOBS_LEASE_TTL", 30*time.Second),
		},
		OutputDir: getEnv("QRJOBS_OUTPUT_DIR", "."),
		Analytics: AnalyticsConfig{
			Enabled:   getEnvAsBool("QRJOBS_ANALYTICS_ENABLED", false),
			Retention: getEnvAsDuration("QRJOBS_ANALYTICS_RETENTION", 90*24*time.Hour),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("QRJOBS_METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("QRJOBS_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("QRJOBS_LOG_FORMAT", "text")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.KV.Backend {
	case BackendSQLite:
		if c.KV.SQLitePath == "" {
			return errors.New("config: QRJOBS_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.KV.DatabaseURL == "" {
			return errors.New("config: QRJOBS_DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.KV.RedisAddr == "" {
			return errors.New("config: QRJOBS_REDIS_ADDR is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown QRJOBS_KV_BACKEND %q", c.KV.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown QRJOBS_LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("1500ms") or whole seconds ("2").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
