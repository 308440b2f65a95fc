// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tpvcore/internal/core/numerator"
)

// Config holds runtime settings.
type Config struct {
	HTTPAddr string

	DatabaseURL        string
	DBMaxConns         int32
	DBMinConns         int32
	StatementTimeout   time.Duration
	TenantLockTimeout  time.Duration
	MigrateOnStart     bool
	IdempotencyTTL     time.Duration
	IdempotencyEnabled bool

	JWTSecret string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration

	TaxZonesFile string

	LogLevel       string
	LogDevelopment bool

	Numbering numerator.Config
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         int32(getEnvInt("DB_MAX_CONNS", 20)),
		DBMinConns:         int32(getEnvInt("DB_MIN_CONNS", 2)),
		StatementTimeout:   getEnvDuration("TX_STATEMENT_TIMEOUT", 30*time.Second),
		TenantLockTimeout:  getEnvDuration("TENANT_LOCK_TIMEOUT", 5*time.Second),
		MigrateOnStart:     getEnvBool("MIGRATE_ON_START", true),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		ReportCacheTTL:     getEnvDuration("REPORT_CACHE_TTL", time.Hour),
		TaxZonesFile:       os.Getenv("TAX_ZONES_FILE"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogDevelopment:     getEnvBool("LOG_DEVELOPMENT", false),
		Numbering: numerator.Config{
			PadWidth:            getEnvInt("COUNTER_PAD_WIDTH", numerator.DefaultConfig().PadWidth),
			RectificativaMarker: getEnv("RECTIFICATIVA_MARKER", numerator.DefaultConfig().RectificativaMarker),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.TenantLockTimeout <= 0 {
		return errors.New("TENANT_LOCK_TIMEOUT must be positive")
	}
	return c.Numbering.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
