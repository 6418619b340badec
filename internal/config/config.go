// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Steam   SteamConfig   `mapstructure:"steam"`
	Epic    EpicConfig    `mapstructure:"epic"`
	Insight InsightConfig `mapstructure:"insight"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig selects and configures the catalog repository.
type DBConfig struct {
	Provider string `mapstructure:"provider"` // postgres or memory
	DSN      string `mapstructure:"dsn"`
}

// ScraperConfig governs the shared acquisition pipeline.
type ScraperConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	HeadlessEnabled   bool   `mapstructure:"headless_enabled"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	StaticTimeoutSecs int    `mapstructure:"static_timeout_seconds"`
}

// SteamConfig tunes the Steam scraper.
type SteamConfig struct {
	BaseURL                string  `mapstructure:"base_url"`
	APIBaseURL             string  `mapstructure:"api_base_url"`
	CountryCode            string  `mapstructure:"country_code"`
	SelectorTimeoutSeconds int     `mapstructure:"selector_timeout_seconds"`
	QPS                    float64 `mapstructure:"qps"`
}

// EpicConfig tunes the Epic Games Store scraper.
type EpicConfig struct {
	BaseURL                string  `mapstructure:"base_url"`
	Locale                 string  `mapstructure:"locale"`
	SelectorTimeoutSeconds int     `mapstructure:"selector_timeout_seconds"`
	ScrollPasses           int     `mapstructure:"scroll_passes"`
	QPS                    float64 `mapstructure:"qps"`
}

// InsightConfig configures the optional AI insight generator.
type InsightConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// PubSubConfig holds metadata for notification event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig sets the rendered-HTML archive destination.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // gcs or none
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig tunes notification rules.
type NotifyConfig struct {
	DropThresholdPercent float64 `mapstructure:"drop_threshold_percent"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GAMEPRICE")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("scraper.user_agent", "gameprice-bot/0.1")
	v.SetDefault("scraper.headless_enabled", true)
	v.SetDefault("scraper.max_parallel", 2)
	v.SetDefault("scraper.nav_timeout_seconds", 30)
	v.SetDefault("scraper.static_timeout_seconds", 15)
	v.SetDefault("steam.base_url", "https://store.steampowered.com")
	v.SetDefault("steam.api_base_url", "https://store.steampowered.com")
	v.SetDefault("steam.country_code", "US")
	v.SetDefault("steam.selector_timeout_seconds", 10)
	v.SetDefault("steam.qps", 1.0)
	v.SetDefault("epic.base_url", "https://store.epicgames.com")
	v.SetDefault("epic.locale", "en-US")
	v.SetDefault("epic.selector_timeout_seconds", 15)
	v.SetDefault("epic.scroll_passes", 3)
	v.SetDefault("epic.qps", 0.5)
	v.SetDefault("insight.model", "gemini-1.5-flash")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.drop_threshold_percent", 10.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be postgres or memory")
	}
	if c.Scraper.HeadlessEnabled && c.Scraper.MaxParallel <= 0 {
		return fmt.Errorf("scraper.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Archive.Provider {
	case "", "none":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be gcs or none")
	}
	if c.Notify.DropThresholdPercent < 0 {
		return fmt.Errorf("notify.drop_threshold_percent must be >= 0")
	}
	return nil
}

// NavTimeout converts the configured navigation timeout into a duration.
func (c ScraperConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// StaticTimeout converts the configured static-client timeout into a duration.
func (c ScraperConfig) StaticTimeout() time.Duration {
	return time.Duration(c.StaticTimeoutSecs) * time.Second
}
