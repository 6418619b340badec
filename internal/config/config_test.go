package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.DB.Provider != "memory" {
		t.Fatalf("expected default db provider memory, got %q", cfg.DB.Provider)
	}
	if !cfg.Scraper.HeadlessEnabled {
		t.Fatal("expected headless enabled by default")
	}
	if cfg.Scraper.NavTimeout() != 30*time.Second {
		t.Fatalf("expected 30s nav timeout, got %v", cfg.Scraper.NavTimeout())
	}
	if cfg.Steam.CountryCode != "US" {
		t.Fatalf("expected default country US, got %q", cfg.Steam.CountryCode)
	}
	if cfg.Epic.Locale != "en-US" {
		t.Fatalf("expected default locale en-US, got %q", cfg.Epic.Locale)
	}
	if cfg.Epic.ScrollPasses != 3 {
		t.Fatalf("expected 3 scroll passes, got %d", cfg.Epic.ScrollPasses)
	}
	if cfg.Notify.DropThresholdPercent != 10.0 {
		t.Fatalf("expected 10%% drop threshold, got %v", cfg.Notify.DropThresholdPercent)
	}
	if cfg.Archive.Provider != "none" {
		t.Fatalf("expected archive disabled by default, got %q", cfg.Archive.Provider)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
db:
  provider: postgres
  dsn: postgres://localhost/gameprice
scraper:
  user_agent: custom-agent
  headless_enabled: false
  nav_timeout_seconds: 45
steam:
  country_code: DE
  qps: 2.5
epic:
  locale: de-DE
  scroll_passes: 5
insight:
  api_key: gem-key
  model: gemini-1.5-pro
pubsub:
  project_id: proj
  topic_name: price-events
archive:
  provider: gcs
  gcs_bucket: snapshots
notify:
  drop_threshold_percent: 15
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatal("expected auth enabled with secret key")
	}
	if cfg.DB.Provider != "postgres" || cfg.DB.DSN == "" {
		t.Fatal("expected postgres provider with DSN")
	}
	if cfg.Scraper.HeadlessEnabled {
		t.Fatal("expected headless disabled")
	}
	if cfg.Scraper.NavTimeout() != 45*time.Second {
		t.Fatalf("expected 45s nav timeout, got %v", cfg.Scraper.NavTimeout())
	}
	if cfg.Steam.CountryCode != "DE" || cfg.Steam.QPS != 2.5 {
		t.Fatal("expected steam overrides to apply")
	}
	if cfg.Epic.Locale != "de-DE" || cfg.Epic.ScrollPasses != 5 {
		t.Fatal("expected epic overrides to apply")
	}
	if cfg.Insight.Model != "gemini-1.5-pro" {
		t.Fatalf("expected model override, got %q", cfg.Insight.Model)
	}
	if cfg.Archive.Provider != "gcs" || cfg.Archive.GCSBucket != "snapshots" {
		t.Fatal("expected gcs archive config")
	}
	if cfg.Notify.DropThresholdPercent != 15 {
		t.Fatalf("expected 15%% threshold, got %v", cfg.Notify.DropThresholdPercent)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		DB:      DBConfig{Provider: "memory"},
		Scraper: ScraperConfig{HeadlessEnabled: true, MaxParallel: 2},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "unknown db provider",
			mutate: func(c *Config) { c.DB.Provider = "sqlite" },
			want:   "db.provider",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.DB.Provider = "postgres" },
			want:   "db.dsn",
		},
		{
			name:   "headless without parallelism",
			mutate: func(c *Config) { c.Scraper.MaxParallel = 0 },
			want:   "scraper.max_parallel",
		},
		{
			name:   "auth without key",
			mutate: func(c *Config) { c.Auth.Enabled = true },
			want:   "auth.api_key",
		},
		{
			name:   "gcs archive without bucket",
			mutate: func(c *Config) { c.Archive.Provider = "gcs" },
			want:   "archive.gcs_bucket",
		},
		{
			name:   "negative drop threshold",
			mutate: func(c *Config) { c.Notify.DropThresholdPercent = -1 },
			want:   "notify.drop_threshold_percent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
