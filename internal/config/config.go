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
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	DB         DBConfig         `mapstructure:"db"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Logging    LoggingConfig    `mapstructure:"logging"`
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

// DBConfig controls the Postgres pool. An empty DSN selects the in-memory
// link store.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// BrowserConfig configures the enrichment browser session.
type BrowserConfig struct {
	Driver        string `mapstructure:"driver"`
	ExecPath      string `mapstructure:"exec_path"`
	RemoteURL     string `mapstructure:"remote_url"`
	UserAgent     string `mapstructure:"user_agent"`
	Headless      bool   `mapstructure:"headless"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WindowWidth   int    `mapstructure:"window_width"`
	WindowHeight  int    `mapstructure:"window_height"`
}

// EnrichmentConfig sizes the queue and bounds shutdown.
type EnrichmentConfig struct {
	QueueDepth             int  `mapstructure:"queue_depth"`
	ShutdownTimeoutSeconds int  `mapstructure:"shutdown_timeout_seconds"`
	ResyncOnStart          bool `mapstructure:"resync_on_start"`
}

// ArchiveConfig selects where screenshots are archived.
type ArchiveConfig struct {
	Backend string              `mapstructure:"backend"`
	Bucket  string              `mapstructure:"bucket"`
	Prefix  string              `mapstructure:"prefix"`
	Local   LocalArchiveConfig  `mapstructure:"local"`
	Badger  BadgerArchiveConfig `mapstructure:"badger"`
}

// LocalArchiveConfig configures the filesystem archive backend.
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// BadgerArchiveConfig configures the embedded archive. An empty Dir keeps it
// in memory.
type BadgerArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// PubSubConfig holds metadata for link.enriched notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NATSConfig publishes link.enriched events to JetStream instead of Pub/Sub.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Stream  string `mapstructure:"stream"`
	Subject string `mapstructure:"subject"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOTES")
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
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.migrate", false)
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("enrichment.queue_depth", 100)
	v.SetDefault("enrichment.shutdown_timeout_seconds", 30)
	v.SetDefault("enrichment.resync_on_start", true)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "screenshots")
	v.SetDefault("archive.local.base_dir", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("archive.badger.dir", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "LINKS")
	v.SetDefault("nats.subject", "links.enriched")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.DB.MaxConns < 0 || c.DB.MinConns < 0 || (c.DB.MaxConns > 0 && c.DB.MinConns > c.DB.MaxConns) {
		return fmt.Errorf("db.min_conns/db.max_conns are inconsistent")
	}
	switch c.Browser.Driver {
	case "chromedp", "rod", "none":
	default:
		return fmt.Errorf("browser.driver must be one of chromedp, rod, none")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Enrichment.QueueDepth <= 0 {
		return fmt.Errorf("enrichment.queue_depth must be > 0")
	}
	if c.Enrichment.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("enrichment.shutdown_timeout_seconds must be > 0")
	}
	switch c.Archive.Backend {
	case "none", "memory", "badger":
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.backend is gcs")
		}
	case "local":
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir must be set when archive.backend is local")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, gcs, local, badger")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.NATS.URL != "" {
		if c.PubSub.ProjectID != "" {
			return fmt.Errorf("configure either pubsub or nats, not both")
		}
		if c.NATS.Subject == "" {
			return fmt.Errorf("nats.subject must be set when nats.url is set")
		}
	}
	return nil
}

// NavigationTimeout converts browser.nav_timeout_seconds to a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// ShutdownTimeout bounds the wait for the worker's acknowledgment.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Enrichment.ShutdownTimeoutSeconds) * time.Second
}

// EventTopic names the topic or subject link.enriched events go to. Empty
// disables publishing.
func (c Config) EventTopic() string {
	switch {
	case c.PubSub.TopicName != "":
		return c.PubSub.TopicName
	case c.NATS.URL != "":
		return c.NATS.Subject
	default:
		return ""
	}
}

// MaxConnLifetime converts db.max_conn_lifetime_minutes to a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMinutes) * time.Minute
}
