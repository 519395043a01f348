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
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type ScraperConfig struct {
	MaxConcurrentTargets int
	StageTimeout         time.Duration
	MaxTransientRetries  int
	SoftBlockThreshold   int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	BlockCooldown        time.Duration
	GalleryNoNewLimit    int
	GalleryScrollCap     int
	ReviewPageCap        int
	ActionDelayMin       time.Duration
	ActionDelayMax       time.Duration
	ForceStages          bool
}

type BrowserConfig struct {
	Headless         bool
	Timeout          time.Duration
	ProxyServer      string
	UserAgentProfile string
	ViewportWidth    int
	ViewportHeight   int
	AcceptLanguage   string
	TimezoneID       string
	Locale           string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type ServerConfig struct {
	Enabled         bool
	Addr            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Scraper: ScraperConfig{
			MaxConcurrentTargets: getIntOrDefault("SCRAPER_MAX_CONCURRENT_TARGETS", 1),
			StageTimeout:         getDurationOrDefault("SCRAPER_STAGE_TIMEOUT", 10*time.Minute),
			MaxTransientRetries:  getIntOrDefault("SCRAPER_MAX_TRANSIENT_RETRIES", 3),
			SoftBlockThreshold:   getIntOrDefault("SCRAPER_SOFT_BLOCK_THRESHOLD", 5),
			BackoffBase:          getDurationOrDefault("SCRAPER_BACKOFF_BASE", 2*time.Second),
			BackoffMax:           getDurationOrDefault("SCRAPER_BACKOFF_MAX", 5*time.Minute),
			BlockCooldown:        getDurationOrDefault("SCRAPER_BLOCK_COOLDOWN", 15*time.Minute),
			GalleryNoNewLimit:    getIntOrDefault("SCRAPER_GALLERY_NO_NEW_LIMIT", 3),
			GalleryScrollCap:     getIntOrDefault("SCRAPER_GALLERY_SCROLL_CAP", 120),
			ReviewPageCap:        getIntOrDefault("SCRAPER_REVIEW_PAGE_CAP", 200),
			ActionDelayMin:       getDurationOrDefault("SCRAPER_ACTION_DELAY_MIN", 800*time.Millisecond),
			ActionDelayMax:       getDurationOrDefault("SCRAPER_ACTION_DELAY_MAX", 2500*time.Millisecond),
			ForceStages:          getBoolOrDefault("SCRAPER_FORCE_STAGES", false),
		},
		Browser: BrowserConfig{
			Headless:         getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:          getDurationOrDefault("BROWSER_TIMEOUT", 60*time.Second),
			ProxyServer:      getEnvOrDefault("BROWSER_PROXY", ""),
			UserAgentProfile: getEnvOrDefault("BROWSER_UA_PROFILE", "desktop-chrome"),
			ViewportWidth:    getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1400),
			ViewportHeight:   getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage:   getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:       getEnvOrDefault("BROWSER_TIMEZONE", "Africa/Casablanca"),
			Locale:           getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "airbnb_hosts"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:scrape_lifecycle"),
		},
		Server: ServerConfig{
			Enabled:         getBoolOrDefault("STATUS_SERVER_ENABLED", false),
			Addr:            getEnvOrDefault("STATUS_SERVER_ADDR", "127.0.0.1:8080"),
			ShutdownTimeout: getDurationOrDefault("STATUS_SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxConcurrentTargets < 1 {
		return fmt.Errorf("SCRAPER_MAX_CONCURRENT_TARGETS must be at least 1")
	}

	if c.Scraper.ActionDelayMin > c.Scraper.ActionDelayMax {
		return fmt.Errorf("SCRAPER_ACTION_DELAY_MIN cannot be greater than SCRAPER_ACTION_DELAY_MAX")
	}

	if c.Scraper.SoftBlockThreshold < 1 {
		return fmt.Errorf("SCRAPER_SOFT_BLOCK_THRESHOLD must be at least 1")
	}

	if c.Scraper.GalleryNoNewLimit < 1 {
		return fmt.Errorf("SCRAPER_GALLERY_NO_NEW_LIMIT must be at least 1")
	}

	if c.Scraper.BackoffBase > c.Scraper.BackoffMax {
		return fmt.Errorf("SCRAPER_BACKOFF_BASE cannot be greater than SCRAPER_BACKOFF_MAX")
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
		return strings.Split(value, ",")
	}
	return defaultValue
}

// UserAgents returns the rotation pool for the configured fingerprint profile.
func (b *BrowserConfig) UserAgents() []string {
	custom := getStringSliceOrDefault("BROWSER_USER_AGENTS", nil)
	if len(custom) > 0 {
		return custom
	}
	switch b.UserAgentProfile {
	case "desktop-firefox":
		return []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0",
		}
	default:
		return []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		}
	}
}
