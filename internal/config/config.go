// Package config loads and validates crawlsearch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawlsearch/internal/pagecodec"
)

// DefaultUserAgent identifies the crawler to remote sites and their robots.txt.
const DefaultUserAgent = "crawlsearch/0.1 (+https://github.com/JakeFAU/crawlsearch)"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Search  SearchConfig  `mapstructure:"search"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig guards the admin endpoints.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the scheduler and crawl pipeline.
type CrawlerConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	RobotsTimeout time.Duration `mapstructure:"robots_timeout"`
	SampleSize    int           `mapstructure:"sample_size"`
	MaxInFlight   int           `mapstructure:"max_in_flight"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RawFormat     string        `mapstructure:"raw_format"`
	// DropUnindexable deletes robots-denied and rejected entries instead of
	// unlocking them for another attempt.
	DropUnindexable bool `mapstructure:"drop_unindexable"`
	// StaleLockAfter enables the lock reaper when positive.
	StaleLockAfter time.Duration `mapstructure:"stale_lock_after"`
}

// SearchConfig shapes query responses.
type SearchConfig struct {
	MaxResults   int `mapstructure:"max_results"`
	SnippetWords int `mapstructure:"snippet_words"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLSEARCH")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.tick_interval", "1s")
	v.SetDefault("crawler.fetch_timeout", "5s")
	v.SetDefault("crawler.robots_timeout", "5s")
	v.SetDefault("crawler.sample_size", 100)
	v.SetDefault("crawler.max_in_flight", 16)
	v.SetDefault("crawler.max_body_bytes", 10*1024*1024)
	v.SetDefault("crawler.raw_format", pagecodec.FormatBrotli)
	v.SetDefault("crawler.drop_unindexable", false)
	v.SetDefault("crawler.stale_lock_after", "0s")
	v.SetDefault("search.max_results", 100)
	v.SetDefault("search.snippet_words", 60)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "0s")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.TickInterval <= 0 {
		return fmt.Errorf("crawler.tick_interval must be > 0")
	}
	if c.Crawler.FetchTimeout <= 0 {
		return fmt.Errorf("crawler.fetch_timeout must be > 0")
	}
	if c.Crawler.RobotsTimeout <= 0 {
		return fmt.Errorf("crawler.robots_timeout must be > 0")
	}
	if c.Crawler.SampleSize <= 0 {
		return fmt.Errorf("crawler.sample_size must be > 0")
	}
	if c.Crawler.MaxInFlight <= 0 {
		return fmt.Errorf("crawler.max_in_flight must be > 0")
	}
	if c.Crawler.StaleLockAfter < 0 {
		return fmt.Errorf("crawler.stale_lock_after must be >= 0")
	}
	if !pagecodec.Valid(c.Crawler.RawFormat) {
		return fmt.Errorf("crawler.raw_format %q is not supported", c.Crawler.RawFormat)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
