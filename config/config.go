package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Wisny97/Projet-1/models"
)

// Config holds scraper configuration.
type Config struct {
	HomeURL          string
	OutputDir        string
	OutputFormat     string // csv, json, or dual
	Columns          []string
	Parallelism      int // category workers
	MaxPages         int // per category
	VisitedCacheSize int
	BatchSize        int
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
	RedisAddr        string
	RedisPrefix      string
	RedisTTL         time.Duration
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		HomeURL:          "https://books.toscrape.com/",
		OutputDir:        "csv_categories",
		OutputFormat:     "csv",
		Columns:          append([]string(nil), models.DefaultColumns...),
		Parallelism:      4,
		MaxPages:         100,
		VisitedCacheSize: 1024,
		BatchSize:        20,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          20 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		RespectRobotsTxt: false,
		RedisPrefix:      "catalog:run:",
		RedisTTL:         24 * time.Hour,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.HomeURL == "" {
		return fmt.Errorf("home URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.HomeURL)
	if err != nil {
		return fmt.Errorf("invalid home URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("home URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("home URL scheme must be http or https")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Columns))
	for _, column := range c.Columns {
		if !models.IsColumn(column) {
			return fmt.Errorf("unknown column %q", column)
		}
		if _, dup := seen[column]; dup {
			return fmt.Errorf("duplicate column %q", column)
		}
		seen[column] = struct{}{}
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.VisitedCacheSize <= 0 {
		return fmt.Errorf("visited cache size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RedisAddr != "" && c.RedisTTL < 0 {
		return fmt.Errorf("redis ttl cannot be negative")
	}

	return nil
}
