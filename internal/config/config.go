package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidPort        = errors.New("PORT must be an integer between 1 and 65535")
)

const DefaultPort = "8000"

type Config struct {
	App struct {
		Host             string
		Port             string
		Debug            bool
		CORSAllowOrigins []string
	}
	DB struct {
		URL          string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		LogLevel     string
	}
	Redis struct {
		URL          string
		TTL          time.Duration
		WarmInterval time.Duration
	}
	Storage struct {
		ImagesDir   string
		MaxUploadMB int
	}
	RateLimit struct {
		RequestsPerSecond int
		Burst             int
	}
	Log struct {
		Level      string
		Format     string
		FilePath   string
		MaxSize    int // MB
		MaxBackups int
		MaxAge     int // days
		Compress   bool
	}
	Bootstrap struct {
		BestEffort bool
	}
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{}

	// App
	cfg.App.Host = getEnv("HOST", "0.0.0.0")
	cfg.App.Port = getEnv("PORT", DefaultPort)
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.CORSAllowOrigins = getEnvAsList("CORS_ALLOW_ORIGINS", []string{"*"})

	// DB
	cfg.DB.URL = getEnv("DATABASE_URL", "")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "")
	cfg.DB.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DB.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DB.LogLevel = strings.ToLower(getEnv("DB_LOG_LEVEL", "warn"))

	// Redis
	cfg.Redis.URL = getEnv("REDIS_URL", "")
	cfg.Redis.TTL = getEnvAsDuration("CACHE_TTL", 30*time.Second)
	cfg.Redis.WarmInterval = getEnvAsDuration("CACHE_WARM_INTERVAL", time.Minute)

	// Storage
	cfg.Storage.ImagesDir = getEnv("IMAGES_DIR", "images")
	cfg.Storage.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", 16)

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)

	// Log
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", "console"))
	cfg.Log.FilePath = getEnv("LOG_FILE_PATH", "")
	cfg.Log.MaxSize = getEnvAsInt("LOG_MAX_SIZE", 100)
	cfg.Log.MaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.Log.MaxAge = getEnvAsInt("LOG_MAX_AGE", 30)
	cfg.Log.Compress = getEnvAsBool("LOG_COMPRESS", false)

	cfg.Bootstrap.BestEffort = getEnvAsBool("BOOTSTRAP_BEST_EFFORT", false)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB.URL) == "" {
		return ErrMissingDatabaseURL
	}
	port, err := strconv.Atoi(c.App.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: got %q", ErrInvalidPort, c.App.Port)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.App.Host, c.App.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
