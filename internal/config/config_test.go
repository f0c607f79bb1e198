package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout: 3s
auth:
  enabled: true
  api_key: secret
crawler:
  user_agent: test-agent
  tick_interval: 250ms
  sample_size: 10
  max_in_flight: 4
  raw_format: zlib
  drop_unindexable: true
  stale_lock_after: 10m
search:
  max_results: 20
  snippet_words: 12
db:
  dsn: postgres://localhost/crawlsearch
  max_conns: 8
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.UserAgent != "test-agent" || cfg.Crawler.TickInterval != 250*time.Millisecond {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.RawFormat != "zlib" || !cfg.Crawler.DropUnindexable || cfg.Crawler.StaleLockAfter != 10*time.Minute {
		t.Fatalf("expected crawler switches to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.FetchTimeout != 5*time.Second {
		t.Fatalf("expected default fetch timeout, got %v", cfg.Crawler.FetchTimeout)
	}
	if cfg.Search.MaxResults != 20 || cfg.Search.SnippetWords != 12 {
		t.Fatalf("expected search overrides: %+v", cfg.Search)
	}
	if cfg.DB.DSN == "" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides: %+v", cfg.DB)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.UserAgent != DefaultUserAgent || cfg.Crawler.RawFormat != "br" {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Crawler.SampleSize != 100 || cfg.Crawler.MaxInFlight != 16 {
		t.Fatalf("unexpected crawler limits: %+v", cfg.Crawler)
	}
	if cfg.Crawler.DropUnindexable || cfg.Crawler.StaleLockAfter != 0 {
		t.Fatalf("expected retry-forever defaults: %+v", cfg.Crawler)
	}
	if cfg.Search.MaxResults != 100 || cfg.Search.SnippetWords != 60 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.DB.DSN != "" {
		t.Fatalf("expected empty dsn, got %q", cfg.DB.DSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Crawler: CrawlerConfig{
			UserAgent:     "ua",
			TickInterval:  time.Second,
			FetchTimeout:  time.Second,
			RobotsTimeout: time.Second,
			SampleSize:    1,
			MaxInFlight:   1,
			RawFormat:     "identity",
		},
		Search: SearchConfig{MaxResults: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid tick", mutate: func(c *Config) { c.Crawler.TickInterval = 0 }, want: "crawler.tick_interval"},
		{name: "invalid fetch timeout", mutate: func(c *Config) { c.Crawler.FetchTimeout = 0 }, want: "crawler.fetch_timeout"},
		{name: "invalid sample size", mutate: func(c *Config) { c.Crawler.SampleSize = 0 }, want: "crawler.sample_size"},
		{name: "unknown raw format", mutate: func(c *Config) { c.Crawler.RawFormat = "gzip" }, want: "crawler.raw_format"},
		{name: "negative stale lock", mutate: func(c *Config) { c.Crawler.StaleLockAfter = -time.Second }, want: "crawler.stale_lock_after"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
