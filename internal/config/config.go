package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"activestats/internal/platform/logger"
)

const (
	StoreFile  = "file"
	StoreRedis = "redis"
	StoreNone  = "none"
)

// Config holds every setting of the status client.
type Config struct {
	// Backend
	APIBaseURL        string
	APIPrefix         string
	SessionCookieName string
	SessionCookie     string

	// Polling
	PollInterval   time.Duration
	RequestTimeout time.Duration
	RetryOnError   bool

	// Snapshot recording
	SnapshotStore string
	DataDir       string
	RedisURL      string
	SnapshotTTL   time.Duration

	// Relay
	RelayAddr string

	// Logging
	LogLevel  slog.Level
	LogFormat string

	// parseErrs holds values that could not be read from the environment.
	parseErrs []error
}

// Load reads envFile when it exists, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	level, err := logger.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	env := &envReader{}
	cfg := &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:5000"),
		APIPrefix:         getEnv("API_PREFIX", "/api"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),
		SessionCookie:     os.Getenv("SESSION_COOKIE"),

		PollInterval:   env.duration("POLL_INTERVAL", 2*time.Second),
		RequestTimeout: env.duration("REQUEST_TIMEOUT", 10*time.Second),
		RetryOnError:   env.boolean("RETRY_ON_ERROR", true),

		SnapshotStore: getEnv("SNAPSHOT_STORE", StoreFile),
		DataDir:       getEnv("DATA_DIR", "./data"),
		RedisURL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		SnapshotTTL:   env.duration("SNAPSHOT_TTL", 24*time.Hour),

		RelayAddr: getEnv("RELAY_ADDR", ":8090"),

		LogLevel:  level,
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	cfg.parseErrs = env.errs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if len(c.parseErrs) > 0 {
		return errors.Join(c.parseErrs...)
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.SnapshotTTL < 0 {
		return fmt.Errorf("SNAPSHOT_TTL must not be negative, got %s", c.SnapshotTTL)
	}
	switch c.SnapshotStore {
	case StoreFile:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required when SNAPSHOT_STORE=file")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SNAPSHOT_STORE=redis")
		}
	case StoreNone:
	default:
		return fmt.Errorf("SNAPSHOT_STORE must be file, redis or none, got %q", c.SnapshotStore)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed values and remembers every malformed one.
type envReader struct {
	errs []error
}

// duration reads a Go duration; bare numbers are milliseconds.
func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	r.errs = append(r.errs, fmt.Errorf("%s must be a duration such as 2s or 2000, got %q", key, value))
	return defaultValue
}

func (r *envReader) boolean(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be true or false, got %q", key, value))
		return defaultValue
	}
	return b
}
