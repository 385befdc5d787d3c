// Package config loads and validates courier configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Transform TransformConfig `mapstructure:"transform"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Telegraph TelegraphConfig `mapstructure:"telegraph"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Store     StoreConfig     `mapstructure:"store"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PipelineConfig governs run admission and working storage.
type PipelineConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	WorkDir     string `mapstructure:"work_dir"`
}

// FetchConfig controls the external fetch tool.
type FetchConfig struct {
	Binary        string `mapstructure:"binary"`
	MaxFileSize   int64  `mapstructure:"max_file_size"`
	Retries       int    `mapstructure:"retries"`
	RetryDelaySec int    `mapstructure:"retry_delay_seconds"`
}

// TransformConfig controls the media transcoding tool.
type TransformConfig struct {
	Binary         string `mapstructure:"binary"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	TargetSize     int64  `mapstructure:"target_size"`
}

// DeliveryConfig controls artifact hand-off sizing and retries.
type DeliveryConfig struct {
	SizeThreshold   int64 `mapstructure:"size_threshold"`
	ChunkSize       int64 `mapstructure:"chunk_size"`
	MaxArtifactSize int64 `mapstructure:"max_artifact_size"`
	SendRetries     int   `mapstructure:"send_retries"`
	SendBackoffSec  int   `mapstructure:"send_backoff_seconds"`
}

// TelegramConfig holds bot credentials for the chat sink.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// TelegraphConfig configures the share-link upload endpoint.
type TelegraphConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig sets the cloud blob destination.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// StoreConfig selects and configures the cache store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	DataDir  string `mapstructure:"data_dir"`
}

// PubSubConfig holds metadata for operator failure notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SweepConfig governs retention enforcement over the work directory.
type SweepConfig struct {
	Schedule      string `mapstructure:"schedule"`
	Budget        int64  `mapstructure:"budget"`
	RetentionHour int    `mapstructure:"retention_hours"`
}

// RateLimitConfig throttles fetch-tool invocations per source host.
type RateLimitConfig struct {
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COURIER")
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
	v.SetDefault("pipeline.concurrency", 3)
	v.SetDefault("pipeline.work_dir", "downloads")
	v.SetDefault("fetch.binary", "yt-dlp")
	v.SetDefault("fetch.max_file_size", int64(2)<<30)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.retry_delay_seconds", 5)
	v.SetDefault("transform.binary", "ffmpeg")
	v.SetDefault("transform.timeout_seconds", 300)
	v.SetDefault("transform.target_size", int64(50)<<20)
	v.SetDefault("delivery.size_threshold", int64(50)<<20)
	v.SetDefault("delivery.chunk_size", int64(50)<<20)
	v.SetDefault("delivery.max_artifact_size", int64(2)<<30)
	v.SetDefault("delivery.send_retries", 3)
	v.SetDefault("delivery.send_backoff_seconds", 5)
	v.SetDefault("telegraph.base_url", "https://telegra.ph")
	v.SetDefault("telegraph.timeout_seconds", 60)
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("store.provider", "sqlite")
	v.SetDefault("store.table", "cache")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("sweep.schedule", "@every 1h")
	v.SetDefault("sweep.budget", int64(500)<<20)
	v.SetDefault("sweep.retention_hours", 24)
	v.SetDefault("ratelimit.default_rps", 1.0)
	v.SetDefault("ratelimit.default_burst", 2)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.WorkDir == "" {
		return fmt.Errorf("pipeline.work_dir must be set")
	}
	if c.Transform.TimeoutSeconds <= 0 {
		return fmt.Errorf("transform.timeout_seconds must be > 0")
	}
	if c.Delivery.ChunkSize <= 0 {
		return fmt.Errorf("delivery.chunk_size must be > 0")
	}
	if c.Delivery.MaxArtifactSize < c.Delivery.SizeThreshold {
		return fmt.Errorf("delivery.max_artifact_size must be >= delivery.size_threshold")
	}
	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	case "sqlite":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir must be set when store.provider is sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("store.provider must be one of postgres, sqlite, memory")
	}
	if c.Sweep.RetentionHour <= 0 {
		return fmt.Errorf("sweep.retention_hours must be > 0")
	}
	return nil
}

// TransformTimeout converts the configured transcode budget into a duration.
func (c Config) TransformTimeout() time.Duration {
	return time.Duration(c.Transform.TimeoutSeconds) * time.Second
}

// Retention converts the configured retention window into a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Sweep.RetentionHour) * time.Hour
}
