package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys shared by the config file, SCRAPER_* environment variables and CLI flags.
const (
	KeyHomeURL          = "home-url"
	KeyOutputDir        = "output-dir"
	KeyOutputFormat     = "format"
	KeyColumns          = "columns"
	KeyParallelism      = "parallel"
	KeyMaxPages         = "max-pages"
	KeyVisitedCacheSize = "visited-cache-size"
	KeyBatchSize        = "batch-size"
	KeyDelay            = "delay"
	KeyRandomDelay      = "random-delay"
	KeyTimeout          = "timeout"
	KeyMaxRetries       = "max-retries"
	KeyRetryBackoff     = "retry-backoff"
	KeyRetryBackoffMax  = "retry-backoff-max"
	KeyUserAgent        = "user-agent"
	KeyVerbose          = "verbose"
	KeyRespectRobots    = "respect-robots"
	KeyMetricsAddr      = "metrics-addr"
	KeyRedisAddr        = "redis-addr"
	KeyRedisPrefix      = "redis-prefix"
	KeyRedisTTL         = "redis-ttl"
)

// EnvPrefix is prepended to every key, upper-cased with dashes as underscores.
const EnvPrefix = "SCRAPER"

// Load resolves configuration. Priority (highest to lowest): changed CLI
// flags > SCRAPER_* env vars > config file > defaults.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault(KeyHomeURL, cfg.HomeURL)
	v.SetDefault(KeyOutputDir, cfg.OutputDir)
	v.SetDefault(KeyOutputFormat, cfg.OutputFormat)
	v.SetDefault(KeyColumns, cfg.Columns)
	v.SetDefault(KeyParallelism, cfg.Parallelism)
	v.SetDefault(KeyMaxPages, cfg.MaxPages)
	v.SetDefault(KeyVisitedCacheSize, cfg.VisitedCacheSize)
	v.SetDefault(KeyBatchSize, cfg.BatchSize)
	v.SetDefault(KeyDelay, cfg.Delay)
	v.SetDefault(KeyRandomDelay, cfg.RandomDelay)
	v.SetDefault(KeyTimeout, cfg.Timeout)
	v.SetDefault(KeyMaxRetries, cfg.MaxRetries)
	v.SetDefault(KeyRetryBackoff, cfg.RetryBackoff)
	v.SetDefault(KeyRetryBackoffMax, cfg.RetryBackoffMax)
	v.SetDefault(KeyUserAgent, cfg.UserAgent)
	v.SetDefault(KeyVerbose, cfg.Verbose)
	v.SetDefault(KeyRespectRobots, cfg.RespectRobotsTxt)
	v.SetDefault(KeyMetricsAddr, cfg.MetricsAddr)
	v.SetDefault(KeyRedisAddr, cfg.RedisAddr)
	v.SetDefault(KeyRedisPrefix, cfg.RedisPrefix)
	v.SetDefault(KeyRedisTTL, cfg.RedisTTL)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		HomeURL:          strings.TrimSpace(v.GetString(KeyHomeURL)),
		OutputDir:        strings.TrimSpace(v.GetString(KeyOutputDir)),
		OutputFormat:     strings.ToLower(strings.TrimSpace(v.GetString(KeyOutputFormat))),
		Columns:          splitList(v.GetStringSlice(KeyColumns)),
		Parallelism:      v.GetInt(KeyParallelism),
		MaxPages:         v.GetInt(KeyMaxPages),
		VisitedCacheSize: v.GetInt(KeyVisitedCacheSize),
		BatchSize:        v.GetInt(KeyBatchSize),
		Delay:            v.GetDuration(KeyDelay),
		RandomDelay:      v.GetDuration(KeyRandomDelay),
		Timeout:          v.GetDuration(KeyTimeout),
		MaxRetries:       v.GetInt(KeyMaxRetries),
		RetryBackoff:     v.GetDuration(KeyRetryBackoff),
		RetryBackoffMax:  v.GetDuration(KeyRetryBackoffMax),
		UserAgent:        v.GetString(KeyUserAgent),
		Verbose:          v.GetBool(KeyVerbose),
		RespectRobotsTxt: v.GetBool(KeyRespectRobots),
		MetricsAddr:      v.GetString(KeyMetricsAddr),
		RedisAddr:        v.GetString(KeyRedisAddr),
		RedisPrefix:      v.GetString(KeyRedisPrefix),
		RedisTTL:         v.GetDuration(KeyRedisTTL),
	}
}

// splitList accepts both list values and comma separated strings.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
