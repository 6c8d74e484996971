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
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Text     TextConfig     `mapstructure:"text"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Audio    AudioConfig    `mapstructure:"audio"`
	DB       DBConfig       `mapstructure:"db"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Feeds    FeedsConfig    `mapstructure:"feeds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig governs the static HTML fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the optional headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	RenderThreshold int  `mapstructure:"render_threshold"`
}

// TextConfig governs normalization and chunking.
type TextConfig struct {
	MaxChunkLength int `mapstructure:"max_chunk_length"`
}

// TTSConfig configures the speech synthesis client.
type TTSConfig struct {
	Endpoint       string   `mapstructure:"endpoint"`
	APIKey         string   `mapstructure:"api_key"`
	Model          string   `mapstructure:"model"`
	DefaultVoice   string   `mapstructure:"default_voice"`
	Voices         []string `mapstructure:"voices"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxConcurrent  int      `mapstructure:"max_concurrent"`
}

// AudioConfig sets where finished audio artifacts are stored.
type AudioConfig struct {
	Provider  string `mapstructure:"provider"` // local, memory or gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls work item persistence.
type DBConfig struct {
	Provider string `mapstructure:"provider"` // memory or postgres
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PublishConfig holds metadata for completion-event publishing.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"` // noop, memory or pubsub
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// PipelineConfig governs background processing fan-out.
type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// FeedsConfig governs RSS subscription refresh behavior.
type FeedsConfig struct {
	MaxEntries     int `mapstructure:"max_entries"`
	InitialEntries int `mapstructure:"initial_entries"`
	RecheckMinutes int `mapstructure:"recheck_minutes"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKCAST")
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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.render_threshold", 2048)
	v.SetDefault("text.max_chunk_length", 4096)
	v.SetDefault("tts.endpoint", "https://api.openai.com/v1/audio/speech")
	v.SetDefault("tts.model", "tts-1")
	v.SetDefault("tts.default_voice", "onyx")
	v.SetDefault("tts.voices", []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"})
	v.SetDefault("tts.timeout_seconds", 120)
	v.SetDefault("tts.max_concurrent", 3)
	v.SetDefault("audio.provider", "local")
	v.SetDefault("audio.local_dir", "data/audio")
	v.SetDefault("audio.prefix", "audio")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("publish.provider", "noop")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("feeds.max_entries", 10)
	v.SetDefault("feeds.initial_entries", 5)
	v.SetDefault("feeds.recheck_minutes", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Text.MaxChunkLength <= 0 {
		return fmt.Errorf("text.max_chunk_length must be > 0")
	}
	if c.TTS.DefaultVoice == "" {
		return fmt.Errorf("tts.default_voice must be set")
	}
	if c.TTS.MaxConcurrent <= 0 {
		return fmt.Errorf("tts.max_concurrent must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	switch c.Audio.Provider {
	case "local", "memory":
	case "gcs":
		if c.Audio.GCSBucket == "" {
			return fmt.Errorf("audio.gcs_bucket must be set when audio.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown audio provider: %s", c.Audio.Provider)
	}
	switch c.Publish.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Publish.ProjectID == "" || c.Publish.Topic == "" {
			return fmt.Errorf("publish.project_id and publish.topic must be set when publish.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown publish provider: %s", c.Publish.Provider)
	}
	return nil
}

// FetchTimeout returns the static fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// TTSTimeout returns the per-call speech synthesis budget.
func (c Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}
