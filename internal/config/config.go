// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
)

// Config is the root configuration for the utility rates service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Forecast ForecastConfig
}

// ServerConfig controls the HTTP listener. AccessLog and SuppressServerHeader
// are profile-driven rather than environment-driven: the development profile
// enables access logging, the production profile disables it and strips the
// Server header.
type ServerConfig struct {
	Host    string `env:"HOST,default=0.0.0.0"`
	Port    int    `env:"PORT,default=8000"`
	Workers int    `env:"WORKERS,default=1"`

	ReadTimeout     int `env:"SERVER_READ_TIMEOUT,default=15"`
	WriteTimeout    int `env:"SERVER_WRITE_TIMEOUT,default=30"`
	ShutdownTimeout int `env:"SERVER_SHUTDOWN_TIMEOUT,default=10"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`

	AccessLog            bool
	SuppressServerHeader bool
}

// DatabaseConfig describes the relational store. An empty DSN selects the
// in-memory store seeded from the tariff file.
type DatabaseConfig struct {
	Driver          string `env:"DB_DRIVER,default=postgres"`
	DSN             string `env:"DATABASE_URL"`
	MaxOpenConns    int    `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `env:"DB_CONN_MAX_LIFETIME,default=300"`
}

// RedisConfig enables the user-rates read-through cache when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
	TTL      int    `env:"REDIS_CACHE_TTL,default=300"`
}

// AuthConfig configures JWT bearer verification.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	Issuer    string `env:"AUTH_JWT_ISSUER"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Format     string `env:"LOG_FORMAT,default=json"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// ForecastConfig controls the cost forecasting service and its recompute
// worker.
type ForecastConfig struct {
	RecomputeSchedule string `env:"FORECAST_RECOMPUTE_SCHEDULE,default=0 3 * * *"`
	BillingPeriodDays int    `env:"FORECAST_BILLING_PERIOD_DAYS,default=30"`
	TariffSeedFile    string `env:"TARIFF_SEED_FILE"`
}

// Load decodes configuration from the environment. Malformed values (a
// non-integer PORT or WORKERS) surface here so startup fails fast.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("PORT %d out of range", cfg.Server.Port)
	}
	if cfg.Server.Workers < 1 {
		return nil, fmt.Errorf("WORKERS must be at least 1, got %d", cfg.Server.Workers)
	}
	return &cfg, nil
}

// Development returns the development profile: access logging on, verbose
// logging, a single forecast worker.
func Development() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	cfg.Server.AccessLog = true
	cfg.Server.SuppressServerHeader = false
	cfg.Server.Workers = 1
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// Production returns the production profile: access logging off, Server
// header suppressed, WORKERS honored from the environment.
func Production() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	cfg.Server.AccessLog = false
	cfg.Server.SuppressServerHeader = true
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return cfg, nil
}
