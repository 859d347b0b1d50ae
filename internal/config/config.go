// Package config loads server settings from defaults, an optional YAML
// file, a .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every server setting.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	LogPath    string `yaml:"log_path"`
	ListenAddr string `yaml:"listen_addr"`

	DatabaseDriver string `yaml:"database_driver"` // sqlite or postgres
	DatabaseDSN    string `yaml:"database_dsn"`    // file path for sqlite

	JWTSecret   string        `yaml:"jwt_secret"` // generated and stored in the database when empty
	TokenExpiry time.Duration `yaml:"token_expiry"`
	CORSOrigins []string      `yaml:"cors_origins"`

	RedisAddr       string        `yaml:"redis_addr"` // limiter is off when empty
	RedisUser       string        `yaml:"redis_user"`
	RedisPassword   string        `yaml:"redis_password"`
	RateLimit       int           `yaml:"rate_limit"` // visitor mutations per window
	RateWindow      time.Duration `yaml:"rate_window"`
	LimiterFailOpen bool          `yaml:"limiter_fail_open"`

	LockTimeout      time.Duration `yaml:"lock_timeout"`
	StoreRetries     int           `yaml:"store_retries"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	ScrapeTimeout    time.Duration `yaml:"scrape_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		ListenAddr:       ":8080",
		DatabaseDriver:   "sqlite",
		DatabaseDSN:      "darila.sqlite3",
		TokenExpiry:      7 * 24 * time.Hour,
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimit:        30,
		RateWindow:       time.Minute,
		LimiterFailOpen:  true,
		LockTimeout:      5 * time.Second,
		StoreRetries:     2,
		SubscriberBuffer: 64,
		ScrapeTimeout:    10 * time.Second,
	}
}

// Load builds the configuration. path names an optional YAML file; a
// missing .env file is ignored.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = LookupEnvString("LOG_LEVEL", c.LogLevel)
	c.LogPath = LookupEnvString("LOG_PATH", c.LogPath)
	c.ListenAddr = LookupEnvString("LISTEN_ADDR", c.ListenAddr)

	c.DatabaseDriver = LookupEnvString("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseDSN = LookupEnvString("DATABASE_URL", c.DatabaseDSN)

	c.JWTSecret = LookupEnvString("JWT_SECRET", c.JWTSecret)
	c.TokenExpiry = LookupEnvDuration("TOKEN_EXPIRY", c.TokenExpiry)
	if origins, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		c.CORSOrigins = SplitList(origins)
	}

	c.RedisAddr = LookupEnvString("REDIS_ADDR", c.RedisAddr)
	c.RedisUser = LookupEnvString("REDIS_USER", c.RedisUser)
	c.RedisPassword = LookupEnvString("REDIS_PASSWORD", c.RedisPassword)
	c.RateLimit = LookupEnvInt("RATE_LIMIT", c.RateLimit)
	c.RateWindow = LookupEnvDuration("RATE_WINDOW", c.RateWindow)
	c.LimiterFailOpen = LookupEnvBool("LIMITER_FAIL_OPEN", c.LimiterFailOpen)

	c.LockTimeout = LookupEnvDuration("LOCK_TIMEOUT", c.LockTimeout)
	c.StoreRetries = LookupEnvInt("STORE_RETRIES", c.StoreRetries)
	c.SubscriberBuffer = LookupEnvInt("SUBSCRIBER_BUFFER", c.SubscriberBuffer)
	c.ScrapeTimeout = LookupEnvDuration("SCRAPE_TIMEOUT", c.ScrapeTimeout)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.DatabaseDriver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if c.RedisAddr != "" && c.RateLimit <= 0 {
		return errors.New("rate_limit must be positive when redis is configured")
	}
	if c.StoreRetries < 0 {
		return errors.New("store_retries cannot be negative")
	}
	return nil
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// SplitList splits a comma-separated value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
