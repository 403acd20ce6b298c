// Package config loads process configuration from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
)

// Config is the full configuration of the server, worker and migrate binaries.
type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig

	StatementCacheTTL   time.Duration
	RetiredBuckets      []category.CostBucket
	DefaultCarcassYield types.Percentage
	IdempotencyTTL      time.Duration

	Worker WorkerConfig
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// WorkerConfig schedules the background jobs. Cron specs use the standard
// five-field syntax.
type WorkerConfig struct {
	RecomputeCron   string
	ReconcileCron   string
	CleanupCron     string
	OutboxInterval  time.Duration
	OutboxBatchSize int
	OutboxRetention time.Duration
	JobLockTTL      time.Duration
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "boigordo")
	v.SetDefault("STATEMENT_CACHE_TTL", "1h")
	v.SetDefault("LOTCOST_RETIRED_BUCKETS", "")
	v.SetDefault("DEFAULT_CARCASS_YIELD", "50")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("RECOMPUTE_CRON", "0 2 * * *")
	v.SetDefault("RECONCILE_CRON", "30 2 * * *")
	v.SetDefault("CLEANUP_CRON", "0 4 * * *")
	v.SetDefault("OUTBOX_INTERVAL", "2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_RETENTION", "168h")
	v.SetDefault("JOB_LOCK_TTL", "10m")
}

// Load reads envFile (".env" when empty) if it exists, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds the configuration from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	yield, err := decimal.NewFromString(v.GetString("DEFAULT_CARCASS_YIELD"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_CARCASS_YIELD: %w", err)
	}
	retired, err := parseBuckets(v.GetString("LOTCOST_RETIRED_BUCKETS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:      v.GetString("APP_ENV"),
		HTTPAddr: v.GetString("HTTP_ADDR"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		StatementCacheTTL:   v.GetDuration("STATEMENT_CACHE_TTL"),
		RetiredBuckets:      retired,
		DefaultCarcassYield: yield,
		IdempotencyTTL:      v.GetDuration("IDEMPOTENCY_TTL"),
		Worker: WorkerConfig{
			RecomputeCron:   v.GetString("RECOMPUTE_CRON"),
			ReconcileCron:   v.GetString("RECONCILE_CRON"),
			CleanupCron:     v.GetString("CLEANUP_CRON"),
			OutboxInterval:  v.GetDuration("OUTBOX_INTERVAL"),
			OutboxBatchSize: v.GetInt("OUTBOX_BATCH_SIZE"),
			OutboxRetention: v.GetDuration("OUTBOX_RETENTION"),
			JobLockTTL:      v.GetDuration("JOB_LOCK_TTL"),
		},
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWT.Secret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if !c.DefaultCarcassYield.IsPositive() || c.DefaultCarcassYield.GreaterThan(types.Hundred()) {
		errs = append(errs, errors.New("DEFAULT_CARCASS_YIELD must be in (0, 100]"))
	}
	if c.Worker.OutboxInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func parseBuckets(raw string) ([]category.CostBucket, error) {
	var out []category.CostBucket
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b := category.CostBucket(strings.ToLower(part))
		if !b.IsValid() {
			return nil, fmt.Errorf("LOTCOST_RETIRED_BUCKETS: unknown bucket %q", part)
		}
		out = append(out, b)
	}
	return out, nil
}
