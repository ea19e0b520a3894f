package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Share     ShareConfig     `yaml:"share"`
	Cache     CacheConfig     `yaml:"cache"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	UserAgent string          `yaml:"user_agent"`
	Logging   LoggingConfig   `yaml:"logging"`
	Timezone  string          `yaml:"timezone"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig selects and configures the durable style backend.
// Type is one of memory, sqlite, mysql, postgres, redis.
type DatabaseConfig struct {
	Type      string         `yaml:"type"`
	TimeoutMs int            `yaml:"timeout_ms"`
	SQLite    SQLiteConfig   `yaml:"sqlite"`
	MySQL     MySQLConfig    `yaml:"mysql"`
	Postgres  PostgresConfig `yaml:"postgres"`
	Redis     RedisConfig    `yaml:"redis"`
}

// SQLiteConfig contains SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// ScraperConfig contains scraper-specific settings
type ScraperConfig struct {
	BaseURL             string `yaml:"base_url"`
	RequestDelaySeconds int    `yaml:"request_delay_seconds"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryDelaySeconds   int    `yaml:"retry_delay_seconds"`
	ConcurrentLimit     int    `yaml:"concurrent_limit"`
	HeadlessFallback    bool   `yaml:"headless_fallback"`
	DailyRunEnabled     bool   `yaml:"daily_run_enabled"`
	DailyRunTime        string `yaml:"daily_run_time"`
}

// RateLimitConfig limits style mutations on the API
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// DatasetConfig points at the generated station files
type DatasetConfig struct {
	CSVPath     string `yaml:"csv_path"`
	GeoJSONPath string `yaml:"geojson_path"`
}

// ShareConfig contains shared-link settings
type ShareConfig struct {
	BaseURL string `yaml:"base_url"`
}

// CacheConfig sizes the decoded shared-payload cache
type CacheConfig struct {
	Size       int `yaml:"size"`
	TTLMinutes int `yaml:"ttl_minutes"`
}

// CleanupConfig contains stale-entry pruning settings
type CleanupConfig struct {
	MaxDeletionCount int `yaml:"max_deletion_count"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	LogRequests bool   `yaml:"log_requests"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8084",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Type:      "sqlite",
			TimeoutMs: 2000,
			SQLite:    SQLiteConfig{Path: "data/styles.db"},
			Redis:     RedisConfig{Addr: "localhost:6379"},
		},
		Scraper: ScraperConfig{
			BaseURL:             "https://www.michi-no-eki.jp/",
			RequestDelaySeconds: 1,
			TimeoutSeconds:      30,
			MaxRetries:          3,
			RetryDelaySeconds:   2,
			ConcurrentLimit:     1,
			DailyRunEnabled:     false,
			DailyRunTime:        "03:00",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			RequestsPerHour:   3000,
			RequestsPerDay:    20000,
		},
		Dataset: DatasetConfig{
			CSVPath:     "data/stations.csv",
			GeoJSONPath: "data/stations.geojson",
		},
		Share: ShareConfig{
			BaseURL: "http://localhost:3000/",
		},
		Cache: CacheConfig{
			Size:       1024,
			TTLMinutes: 30,
		},
		Cleanup: CleanupConfig{
			MaxDeletionCount: 500,
		},
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		Logging: LoggingConfig{
			Level:       "info",
			LogRequests: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// GetRequestDelay returns the request delay as a duration
func (c *ScraperConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetTimeout returns the timeout as a duration
func (c *ScraperConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the retry delay as a duration
func (c *ScraperConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// GetTimeout returns the per-operation storage timeout
func (c *DatabaseConfig) GetTimeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// GetTTL returns the cache entry lifetime
func (c *CacheConfig) GetTTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}
