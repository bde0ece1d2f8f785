// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Robots      RobotsConfig      `mapstructure:"robots"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Extractor   ExtractorConfig   `mapstructure:"extractor"`
	Retry       RetryConfig       `mapstructure:"retry"`
	DB          DBConfig          `mapstructure:"db"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CrawlerConfig governs request-level behavior.
type CrawlerConfig struct {
	Sources           []string `mapstructure:"sources"`
	MaxItemsPerSource int      `mapstructure:"max_items_per_source"`
	UserAgent         string   `mapstructure:"user_agent"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_seconds"`
}

// RobotsConfig controls robots.txt fetching, caching and pacing.
type RobotsConfig struct {
	FetchTimeoutSec   int `mapstructure:"fetch_timeout_seconds"`
	CacheTTLMin       int `mapstructure:"cache_ttl_minutes"`
	FailTTLMin        int `mapstructure:"fail_ttl_minutes"`
	DefaultIntervalMs int `mapstructure:"default_interval_ms"`
	MaxCrawlDelaySec  int `mapstructure:"max_crawl_delay_seconds"`
}

// ResolverConfig governs search-page discovery.
type ResolverConfig struct {
	FetchTimeoutSec int `mapstructure:"fetch_timeout_seconds"`
	OverCollect     int `mapstructure:"over_collect"`
}

// ExtractorConfig configures the headless rendering subsystem.
type ExtractorConfig struct {
	MaxParallel        int  `mapstructure:"max_parallel"`
	NavTimeoutSec      int  `mapstructure:"nav_timeout_seconds"`
	SelectorTimeoutMs  int  `mapstructure:"selector_timeout_ms"`
	QualityThreshold   int  `mapstructure:"quality_threshold"`
	MaxBodyRunes       int  `mapstructure:"max_body_runes"`
	CaptureScreenshots bool `mapstructure:"capture_screenshots"`
}

// RetryConfig configures the shared backoff schedule.
type RetryConfig struct {
	MaxAttempts      int  `mapstructure:"max_attempts"`
	BackoffInitialMs int  `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int  `mapstructure:"backoff_max_ms"`
	Jitter           bool `mapstructure:"jitter"`
}

// DBConfig controls access to the relational database. An empty DSN
// disables persistence.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	BatchSize       int    `mapstructure:"batch_size"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// DiagnosticsConfig sets where empty-result and rejection snapshots land.
type DiagnosticsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.sources", []string{"naver", "google-news"})
	v.SetDefault("crawler.max_items_per_source", 10)
	v.SetDefault("crawler.user_agent", "newscrawl/1.0")
	v.SetDefault("crawler.request_timeout_seconds", 300)
	v.SetDefault("robots.fetch_timeout_seconds", 5)
	v.SetDefault("robots.cache_ttl_minutes", 60)
	v.SetDefault("robots.fail_ttl_minutes", 5)
	v.SetDefault("robots.default_interval_ms", 1000)
	v.SetDefault("robots.max_crawl_delay_seconds", 60)
	v.SetDefault("resolver.fetch_timeout_seconds", 15)
	v.SetDefault("resolver.over_collect", 3)
	v.SetDefault("extractor.max_parallel", 5)
	v.SetDefault("extractor.nav_timeout_seconds", 30)
	v.SetDefault("extractor.selector_timeout_ms", 2000)
	v.SetDefault("extractor.quality_threshold", 50)
	v.SetDefault("extractor.max_body_runes", 3000)
	v.SetDefault("extractor.capture_screenshots", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 250)
	v.SetDefault("retry.backoff_max_ms", 5000)
	v.SetDefault("retry.jitter", false)
	v.SetDefault("db.table", "articles")
	v.SetDefault("db.batch_size", 50)
	v.SetDefault("diagnostics.dir", "diagnostics")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Crawler.Sources) == 0 {
		return fmt.Errorf("crawler.sources must not be empty")
	}
	if c.Crawler.MaxItemsPerSource <= 0 {
		return fmt.Errorf("crawler.max_items_per_source must be > 0")
	}
	if c.Extractor.MaxParallel <= 0 {
		return fmt.Errorf("extractor.max_parallel must be > 0")
	}
	if c.Extractor.QualityThreshold <= 0 {
		return fmt.Errorf("extractor.quality_threshold must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Robots.MaxCrawlDelaySec <= 0 {
		return fmt.Errorf("robots.max_crawl_delay_seconds must be > 0")
	}
	if c.DB.DSN != "" && c.DB.BatchSize <= 0 {
		return fmt.Errorf("db.batch_size must be > 0 when db.dsn is set")
	}
	return nil
}

// RequestTimeout converts the request budget into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSec) * time.Second
}
