package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SandboxBrowser = "browser"
	SandboxStatic  = "static"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	requestSlack = 5 * time.Second
)

// DefaultAllowedOrigins restricts CORS to local development origins.
var DefaultAllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}

type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Extraction ExtractionConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type ExtractionConfig struct {
	// Sandbox selects the rendering sandbox: "browser" (Playwright) or
	// "static" (plain HTTP fetch, no JavaScript).
	Sandbox         string
	SettleDelay     time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitMin    time.Duration
	RateLimitMax    time.Duration
	SharedLinksSize int
}

type DatabaseConfig struct {
	Driver     string
	SQLitePath string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	MaxConns   int
}

type RedisConfig struct {
	// Addr empty disables event publishing.
	Addr     string
	Password string
	DB       int
	Stream   string
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", DefaultAllowedOrigins),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 412),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 915),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-IN,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Kolkata"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-IN"),
		},
		Extraction: ExtractionConfig{
			Sandbox:         strings.ToLower(getEnvOrDefault("EXTRACTION_SANDBOX", SandboxBrowser)),
			SettleDelay:     getDurationOrDefault("EXTRACTION_SETTLE_DELAY", 3*time.Second),
			Timeout:         getDurationOrDefault("EXTRACTION_TIMEOUT", 30*time.Second),
			MaxRetries:      getIntOrDefault("EXTRACTION_MAX_RETRIES", 2),
			RetryDelay:      getDurationOrDefault("EXTRACTION_RETRY_DELAY", 500*time.Millisecond),
			RateLimitMin:    getDurationOrDefault("EXTRACTION_RATE_LIMIT_MIN", 0),
			RateLimitMax:    getDurationOrDefault("EXTRACTION_RATE_LIMIT_MAX", 0),
			SharedLinksSize: getIntOrDefault("SHARED_LINKS_SIZE", 20),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverSQLite)),
			SQLitePath: getEnvOrDefault("DB_SQLITE_PATH", "wishlist.db"),
			Host:       getEnvOrDefault("DB_HOST", "localhost"),
			Port:       getIntOrDefault("DB_PORT", 5432),
			User:       getEnvOrDefault("DB_USER", "postgres"),
			Password:   getEnvOrDefault("DB_PASSWORD", ""),
			DBName:     getEnvOrDefault("DB_NAME", "wishlist"),
			SSLMode:    getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:   getIntOrDefault("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:wishlist_events"),
		},
		Cache: CacheConfig{
			Size: getIntOrDefault("CACHE_SIZE", 128),
			TTL:  getDurationOrDefault("CACHE_TTL", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Extraction.Sandbox {
	case SandboxBrowser, SandboxStatic:
	default:
		return fmt.Errorf("EXTRACTION_SANDBOX must be %q or %q", SandboxBrowser, SandboxStatic)
	}

	if c.Extraction.SettleDelay < 0 {
		return fmt.Errorf("EXTRACTION_SETTLE_DELAY cannot be negative")
	}

	if c.Extraction.MaxRetries < 0 {
		return fmt.Errorf("EXTRACTION_MAX_RETRIES cannot be negative")
	}

	if c.Extraction.RateLimitMin > c.Extraction.RateLimitMax {
		return fmt.Errorf("EXTRACTION_RATE_LIMIT_MIN cannot be greater than EXTRACTION_RATE_LIMIT_MAX")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q", DriverSQLite, DriverPostgres)
	}

	if c.Cache.Size < 0 {
		return fmt.Errorf("CACHE_SIZE cannot be negative")
	}

	return nil
}

// RetryMaxInterval caps the backoff between extraction attempts.
func (e ExtractionConfig) RetryMaxInterval() time.Duration {
	return 10 * e.RetryDelay
}

// WorstCase bounds a single extraction including retries: every attempt
// waits out the rate limiter, the settle delay and the timeout, and every
// retry waits the longest randomized backoff.
func (e ExtractionConfig) WorstCase() time.Duration {
	attempts := time.Duration(e.MaxRetries + 1)
	perAttempt := e.RateLimitMax + e.SettleDelay + e.Timeout
	backoffs := time.Duration(e.MaxRetries) * e.RetryMaxInterval() * 3 / 2
	return attempts*perAttempt + backoffs
}

// RequestTimeout is the deadline for one API request. It never drops below
// a worst-case extraction, so share requests are not cut off mid-retry.
func (c *Config) RequestTimeout() time.Duration {
	if d := c.Extraction.WorstCase() + requestSlack; d > c.Server.WriteTimeout {
		return d
	}
	return c.Server.WriteTimeout
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// NewLogger builds the process logger from the logging section.
func (l LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
