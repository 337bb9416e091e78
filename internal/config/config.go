package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string          `yaml:"service_name" env:"SERVICE_NAME" env-default:"compost-logbook"`
	LogLevel    string          `yaml:"log_level"    env:"LOG_LEVEL"    env-default:"info"`
	HTTP        HTTPConfig      `yaml:"http"`
	Database    DatabaseConfig  `yaml:"database"`
	RabbitMQ    RabbitMQConfig  `yaml:"rabbitmq"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Privacy     PrivacyConfig   `yaml:"privacy"`
	Auth        AuthConfig      `yaml:"auth"`
	Logbook     LogbookConfig   `yaml:"logbook"`
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Address         string        `yaml:"address"          env:"HTTP_ADDRESS"          env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"           env:"DATABASE_URL"`
	EnsureSchema bool   `yaml:"ensure_schema" env:"DATABASE_ENSURE_SCHEMA" env-default:"true"`
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL                string `yaml:"url"                  env:"RABBITMQ_URL"`
	IngestExchange     string `yaml:"ingest_exchange"      env:"RABBITMQ_INGEST_EXCHANGE"      env-default:"compost-logbook.ingest.exchange"`
	IngestQueue        string `yaml:"ingest_queue"         env:"RABBITMQ_INGEST_QUEUE"         env-default:"compost-logbook.ingest.queue"`
	IngestRoutingKey   string `yaml:"ingest_routing_key"   env:"RABBITMQ_INGEST_ROUTING_KEY"   env-default:"log.submitted"`
	EventsExchange     string `yaml:"events_exchange"      env:"RABBITMQ_EVENTS_EXCHANGE"      env-default:"compost-logbook.events.exchange"`
	AcceptedRoutingKey string `yaml:"accepted_routing_key" env:"RABBITMQ_ACCEPTED_ROUTING_KEY" env-default:"log.accepted"`
	DLQQueue           string `yaml:"dlq_queue"            env:"RABBITMQ_DLQ_QUEUE"            env-default:"compost-logbook.ingest.dlq"`
	PrefetchCount      int    `yaml:"prefetch"             env:"RABBITMQ_PREFETCH"             env-default:"10"`
}

// RateLimitConfig holds the per-device submission limit
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"    env:"RATE_LIMIT_ENABLED" env-default:"true"`
	RedisAddr string        `yaml:"redis_addr" env:"REDIS_ADDR"         env-default:"localhost:6379"`
	RedisPass string        `yaml:"redis_pass" env:"REDIS_PASSWORD"`
	RedisDB   int           `yaml:"redis_db"   env:"REDIS_DB"           env-default:"0"`
	Limit     int           `yaml:"limit"      env:"RATE_LIMIT_LIMIT"   env-default:"20"`
	Window    time.Duration `yaml:"window"     env:"RATE_LIMIT_WINDOW"  env-default:"1h"`
	Prefix    string        `yaml:"prefix"     env:"RATE_LIMIT_PREFIX"  env-default:"rl:logs"`
}

// PrivacyConfig holds the secret emails are encrypted with
type PrivacyConfig struct {
	EmailSecret string `yaml:"email_secret" env:"PRIVACY_EMAIL_SECRET"`
}

// AuthConfig holds admin token verification settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	AdminRole string `yaml:"admin_role" env:"AUTH_ADMIN_ROLE" env-default:"admin"`
}

// LogbookConfig holds domain settings
type LogbookConfig struct {
	TimeZone string `yaml:"time_zone" env:"LOGBOOK_TIME_ZONE" env-default:"Europe/Amsterdam"`
}

// Load reads configuration from an optional YAML file and environment variables.
// The file path comes from CONFIG_PATH (fallback "./config.yaml"); a missing
// default file is not an error.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	if c.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required but not set")
	}
	if len(c.Privacy.EmailSecret) < 16 {
		return fmt.Errorf("PRIVACY_EMAIL_SECRET must be at least 16 characters")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required but not set")
	}
	if c.RabbitMQ.PrefetchCount < 1 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.PrefetchCount)
	}
	if _, err := time.LoadLocation(c.Logbook.TimeZone); err != nil {
		return fmt.Errorf("LOGBOOK_TIME_ZONE %q: %w", c.Logbook.TimeZone, err)
	}
	return nil
}

// Location returns the time zone log dates are stamped in.
// Validate has already checked the name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Logbook.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
