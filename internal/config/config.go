package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"itc-reconciliation-backend/internal/services/matching"
	"itc-reconciliation-backend/internal/services/reconciliation"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=itc_reconciliation port=5432 sslmode=disable"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Config struct {
	DatabaseURL string
	Port        string
	CORSOrigins []string

	Matching           matching.Config
	MalformedThreshold float64
	Workers            int

	StaleProcessingAfter time.Duration
	SweepInterval        time.Duration

	// Redis and Minio are optional; an empty Addr or Endpoint disables them.
	Redis RedisConfig
	Minio MinioConfig
}

// Load reads the environment. Call godotenv first if a .env file is used.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", defaultDSN),
		Port:               getEnv("PORT", "8080"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		Matching:           matching.DefaultConfig(),
		MalformedThreshold: reconciliation.DefaultOptions().MalformedThreshold,
		Workers:            reconciliation.DefaultOptions().Workers,
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "gstr2b-statements"),
		},
	}

	var err error
	if cfg.Matching.DateWindowDays, err = intEnv("MATCH_DATE_WINDOW_DAYS", cfg.Matching.DateWindowDays); err != nil {
		return nil, err
	}
	if cfg.Matching.FullMatchThreshold, err = intEnv("MATCH_FULL_THRESHOLD", cfg.Matching.FullMatchThreshold); err != nil {
		return nil, err
	}
	if cfg.Matching.PartialMatchThreshold, err = intEnv("MATCH_PARTIAL_THRESHOLD", cfg.Matching.PartialMatchThreshold); err != nil {
		return nil, err
	}
	if cfg.MalformedThreshold, err = floatEnv("MALFORMED_THRESHOLD", cfg.MalformedThreshold); err != nil {
		return nil, err
	}
	if cfg.Workers, err = intEnv("RECONCILE_WORKERS", cfg.Workers); err != nil {
		return nil, err
	}
	if cfg.StaleProcessingAfter, err = durationEnv("STALE_PROCESSING_AFTER", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Minio.UseSSL, err = boolEnv("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching config: %w", err)
	}
	if c.MalformedThreshold < 0 || c.MalformedThreshold > 1 {
		return fmt.Errorf("MALFORMED_THRESHOLD must be within [0, 1], got %v", c.MalformedThreshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("RECONCILE_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.StaleProcessingAfter <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("STALE_PROCESSING_AFTER and SWEEP_INTERVAL must be positive")
	}
	return nil
}

// ReconciliationOptions builds service options; archive and progress are
// wired by the caller.
func (c *Config) ReconciliationOptions() reconciliation.Options {
	opts := reconciliation.DefaultOptions()
	opts.Matching = c.Matching
	opts.MalformedThreshold = c.MalformedThreshold
	opts.Workers = c.Workers
	opts.HeartbeatInterval = c.HeartbeatInterval()
	return opts
}

// HeartbeatInterval keeps several heartbeats inside the stale cutoff so a
// live pass is never swept.
func (c *Config) HeartbeatInterval() time.Duration {
	return c.StaleProcessingAfter / 6
}

func InitDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connected")
	return db
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
