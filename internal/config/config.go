// Package config loads service configuration and opens the datastore.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DB          DBConfig
	LogLevel    string
	LogPretty   bool
	CORSOrigins []string
	AutoMatch   AutoMatchConfig
	CacheTTL    time.Duration
	Retry       RetryConfig
	Archive     ArchiveConfig
}

type DBConfig struct {
	Driver     string // postgres or sqlite
	URL        string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type AutoMatchConfig struct {
	Schedule  string // cron spec, empty disables the job
	BatchSize int
	Workers   int
}

type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

// ArchiveConfig points at an S3-compatible bucket for raw statement files.
// An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnvAsInt("PORT", 8080),
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("DB_NAME", "reconciliation"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "reconciliation.db"),
		},
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		AutoMatch: AutoMatchConfig{
			Schedule:  getEnv("AUTO_MATCH_SCHEDULE", "@every 15m"),
			BatchSize: getEnvAsInt("AUTO_MATCH_BATCH_SIZE", 100),
			Workers:   getEnvAsInt("AUTO_MATCH_WORKERS", 4),
		},
		CacheTTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		Retry: RetryConfig{
			Attempts: getEnvAsInt("DB_RETRY_ATTEMPTS", 3),
			Backoff:  getEnvAsDuration("DB_RETRY_BACKOFF", 100*time.Millisecond),
		},
		Archive: ArchiveConfig{
			Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:    getEnv("ARCHIVE_S3_REGION", "auto"),
			Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
			Prefix:    getEnv("ARCHIVE_S3_PREFIX", "statements"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.AutoMatch.BatchSize <= 0 {
		return fmt.Errorf("AUTO_MATCH_BATCH_SIZE must be positive")
	}
	if c.AutoMatch.Workers <= 0 {
		return fmt.Errorf("AUTO_MATCH_WORKERS must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("DB_RETRY_ATTEMPTS must be positive")
	}
	return nil
}

// DSN builds the postgres connection string unless DATABASE_URL is set.
func (d DBConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
