// Package config loads service configuration from an optional YAML file,
// dotenv files and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"velib-cloud/internal/logging"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Store        StoreConfig        `yaml:"store"`
	Resolver     ResolverConfig     `yaml:"resolver"`
	Rollup       RollupConfig       `yaml:"rollup"`
	Distribution DistributionConfig `yaml:"distribution"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Changefeed   ChangefeedConfig   `yaml:"changefeed"`
	Sync         SyncConfig         `yaml:"sync"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      logging.Config     `yaml:"logging"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins       []string      `yaml:"cors_origins"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ResolverConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Lookback    time.Duration `yaml:"lookback"`
}

type RollupConfig struct {
	Timezone string        `yaml:"timezone"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

type DistributionConfig struct {
	RecencyWindow time.Duration `yaml:"recency_window"`
	TopN          int           `yaml:"top_n"`
}

type AlertsConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	Template       string        `yaml:"template"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ChangefeedConfig struct {
	Channel    string        `yaml:"channel"`
	Debounce   time.Duration `yaml:"debounce"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type SyncConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Path        string        `yaml:"path"`
	Token       string        `yaml:"token"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Store:        StoreConfig{Driver: DriverPostgres},
		Resolver:     ResolverConfig{Concurrency: 8},
		Rollup:       RollupConfig{Timezone: "Europe/Paris", Breaker: BreakerConfig{FailureThreshold: 3, Timeout: time.Minute}},
		Distribution: DistributionConfig{RecencyWindow: 2 * time.Hour, TopN: 10},
		Alerts:       AlertsConfig{RequestTimeout: 5 * time.Second},
		Changefeed:   ChangefeedConfig{Channel: "station_snapshots", Debounce: 500 * time.Millisecond, RetryDelay: 5 * time.Second},
		Sync:         SyncConfig{MinInterval: 30 * time.Second},
		Logging:      logging.Config{Level: "info", Format: "json"},
	}
}

// Load reads .env and .env.local, then the YAML file at path (or CONFIG_FILE
// when path is empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout = getenvDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)
	if origins := splitCSV(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.HTTP.CORSOrigins = origins
	}

	cfg.Store.Driver = getenvDefault("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Store.DSN))

	cfg.Resolver.Concurrency = getenvIntDefault("RESOLVER_CONCURRENCY", cfg.Resolver.Concurrency)
	cfg.Resolver.Lookback = getenvDuration("RESOLVER_LOOKBACK", cfg.Resolver.Lookback)

	cfg.Rollup.Timezone = getenvDefault("TIMEZONE", cfg.Rollup.Timezone)
	cfg.Rollup.Breaker.FailureThreshold = uint32(getenvIntDefault("ROLLUP_BREAKER_FAILURES", int(cfg.Rollup.Breaker.FailureThreshold)))
	cfg.Rollup.Breaker.Timeout = getenvDuration("ROLLUP_BREAKER_TIMEOUT", cfg.Rollup.Breaker.Timeout)

	cfg.Distribution.RecencyWindow = getenvDuration("DISTRIBUTION_RECENCY_WINDOW", cfg.Distribution.RecencyWindow)
	cfg.Distribution.TopN = getenvIntDefault("DISTRIBUTION_TOP_N", cfg.Distribution.TopN)

	cfg.Alerts.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Alerts.WebhookURL)
	cfg.Alerts.Template = getenvDefault("ALERT_NOTIFY_TEMPLATE", cfg.Alerts.Template)
	cfg.Alerts.RequestTimeout = getenvDuration("ALERT_NOTIFY_TIMEOUT", cfg.Alerts.RequestTimeout)

	cfg.Changefeed.Channel = getenvDefault("CHANGEFEED_CHANNEL", cfg.Changefeed.Channel)
	cfg.Changefeed.Debounce = getenvDuration("CHANGEFEED_DEBOUNCE", cfg.Changefeed.Debounce)

	cfg.Sync.BaseURL = getenvDefault("SYNC_BASE_URL", cfg.Sync.BaseURL)
	cfg.Sync.Path = getenvDefault("SYNC_PATH", cfg.Sync.Path)
	cfg.Sync.Token = getenvDefault("SYNC_TOKEN", cfg.Sync.Token)
	cfg.Sync.MinInterval = getenvDuration("SYNC_MIN_INTERVAL", cfg.Sync.MinInterval)

	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.Auth.JWTSecret))

	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("config: store.dsn required for postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("config: http.addr required")
	}
	if c.Resolver.Concurrency <= 0 {
		return errors.New("config: resolver.concurrency must be positive")
	}
	if _, err := time.LoadLocation(c.Rollup.Timezone); err != nil {
		return fmt.Errorf("config: rollup.timezone: %w", err)
	}
	if c.Distribution.RecencyWindow <= 0 {
		return errors.New("config: distribution.recency_window must be positive")
	}
	if c.Distribution.TopN <= 0 {
		return errors.New("config: distribution.top_n must be positive")
	}
	if c.Changefeed.Debounce < 0 {
		return errors.New("config: changefeed.debounce must not be negative")
	}
	return nil
}

// Location returns the rollup timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Rollup.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
