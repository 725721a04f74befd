package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Ledger   LedgerConfig
	Download DownloadConfig
	Redis    RedisConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

type ScraperConfig struct {
	AllColors       bool
	ConcurrentLimit int
	RateLimitMin    time.Duration
	RateLimitMax    time.Duration
	StoreSuffix     string
	RetryDegraded   bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	MaxSessions    int
	ScrollInterval time.Duration
	MaxScrolls     int
	UserAgent      string
	Locale         string
}

type LedgerConfig struct {
	Driver string
	Path   string
	DSN    string
}

type DownloadConfig struct {
	Dir          string
	ChunkSize    int
	Timeout      time.Duration
	Collision    string
	ShowProgress bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type StatusConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Scraper: ScraperConfig{
			AllColors:       getBoolOrDefault("SCRAPER_ALL_COLORS", false),
			ConcurrentLimit: getIntOrDefault("SCRAPER_CONCURRENT_LIMIT", 1),
			RateLimitMin:    getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 0),
			RateLimitMax:    getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 0),
			StoreSuffix:     getEnvOrDefault("SCRAPER_STORE_SUFFIX", " - IKEA"),
			RetryDegraded:   getBoolOrDefault("SCRAPER_RETRY_DEGRADED", false),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			MaxSessions:    getIntOrDefault("BROWSER_MAX_SESSIONS", 2),
			ScrollInterval: getDurationOrDefault("BROWSER_SCROLL_INTERVAL", 2*time.Second),
			MaxScrolls:     getIntOrDefault("BROWSER_MAX_SCROLLS", 50),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", ""),
		},
		Ledger: LedgerConfig{
			Driver: getEnvOrDefault("LEDGER_DRIVER", "sqlite3"),
			Path:   getEnvOrDefault("LEDGER_PATH", "products.db"),
			DSN:    getEnvOrDefault("LEDGER_DSN", ""),
		},
		Download: DownloadConfig{
			Dir:          getEnvOrDefault("DOWNLOAD_DIR", "downloaded-files"),
			ChunkSize:    getIntOrDefault("DOWNLOAD_CHUNK_SIZE", 32*1024),
			Timeout:      getDurationOrDefault("DOWNLOAD_TIMEOUT", 0),
			Collision:    getEnvOrDefault("FILENAME_COLLISION", "overwrite"),
			ShowProgress: getBoolOrDefault("DOWNLOAD_PROGRESS", true),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:asset_downloads"),
		},
		Status: StatusConfig{
			Addr: getEnvOrDefault("STATUS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.ConcurrentLimit < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENT_LIMIT must be at least 1")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("BROWSER_MAX_SESSIONS must be at least 1")
	}

	if c.Browser.MaxScrolls < 1 {
		return fmt.Errorf("BROWSER_MAX_SCROLLS must be at least 1")
	}

	switch c.Ledger.Driver {
	case "sqlite3":
		if c.Ledger.Path == "" {
			return fmt.Errorf("LEDGER_PATH is required for the sqlite3 driver")
		}
	case "pgx":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("LEDGER_DSN is required for the pgx driver")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_DRIVER %q", c.Ledger.Driver)
	}

	if c.Download.ChunkSize < 1 {
		return fmt.Errorf("DOWNLOAD_CHUNK_SIZE must be at least 1")
	}

	if c.Download.Collision != "overwrite" && c.Download.Collision != "suffix" {
		return fmt.Errorf("FILENAME_COLLISION must be overwrite or suffix, got %q", c.Download.Collision)
	}

	return nil
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
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
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
