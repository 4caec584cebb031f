// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address the JSON HTTP API listens on (e.g. :8081). Empty disables it.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// DBDriver selects the token store: postgres or sqlite.
	DBDriver string `mapstructure:"DB_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when DBDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the SQLite database file used when DBDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// AccessTokenTTL is the access token lifetime (e.g. "15m").
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTokenTTL is the refresh token lifetime (e.g. "720h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`
	// RotationPolicy decides a refresh that loses a concurrent rotation: fail_closed or fail_open.
	RotationPolicy string `mapstructure:"ROTATION_POLICY"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RedisAddr enables login throttling when set (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// LoginMaxFailures is the number of failed logins per email before lockout.
	LoginMaxFailures int `mapstructure:"LOGIN_MAX_FAILURES"`
	// LoginFailureWindow is how long failures are counted (e.g. "15m").
	LoginFailureWindow string `mapstructure:"LOGIN_FAILURE_WINDOW"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is text or json.
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to an https endpoint.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Session events (optional). When Kafka brokers are set, lifecycle events go to Kafka instead of OTel logs.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
}

var defaults = map[string]any{
	"GRPC_ADDR":                   ":8080",
	"HTTP_ADDR":                   ":8081",
	"APP_ENV":                     "",
	"DB_DRIVER":                   "postgres",
	"DATABASE_URL":                "",
	"SQLITE_PATH":                 "seshlock.db",
	"AUTO_MIGRATE":                false,
	"ACCESS_TOKEN_TTL":            "15m",
	"REFRESH_TOKEN_TTL":           "720h",
	"ROTATION_POLICY":             "fail_closed",
	"BCRYPT_COST":                 12,
	"REDIS_ADDR":                  "",
	"LOGIN_MAX_FAILURES":          5,
	"LOGIN_FAILURE_WINDOW":        "15m",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "text",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
	"OTEL_SERVICE_NAME":           "seshlock",
	"KAFKA_BROKERS":               "",
	"SESSION_EVENTS_TOPIC":        "seshlock-session-events",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH must be set when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	for key, value := range map[string]string{
		"ACCESS_TOKEN_TTL":     c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":    c.RefreshTokenTTL,
		"LOGIN_FAILURE_WINDOW": c.LoginFailureWindow,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, value)
		}
	}
	switch c.RotationPolicy {
	case "fail_closed", "fail_open":
	default:
		return fmt.Errorf("config: ROTATION_POLICY must be fail_closed or fail_open, got %q", c.RotationPolicy)
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.LoginMaxFailures <= 0 {
		return errors.New("config: LOGIN_MAX_FAILURES must be positive")
	}
	return nil
}

// DatabaseLocation returns the DSN for the configured driver: DATABASE_URL for
// postgres, SQLITE_PATH for sqlite.
func (c *Config) DatabaseLocation() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

// AccessTTL parses AccessTokenTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.AccessTokenTTL, 15*time.Minute)
}

// RefreshTTL parses RefreshTokenTTL. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.RefreshTokenTTL, 720*time.Hour)
}

// LoginWindow parses LoginFailureWindow. Returns 15m if unset or invalid.
func (c *Config) LoginWindow() time.Duration {
	return parseDuration(c.LoginFailureWindow, 15*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka event producer is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
