// Package config provides configuration management for voiced
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	NLP         NLPConfig         `mapstructure:"nlp"`
	Subsonic    SubsonicConfig    `mapstructure:"subsonic"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LogConfig configures logging output
type LogConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// IngestConfig configures the audio segment ingress
type IngestConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	SampleRate int    `mapstructure:"sample_rate"`
	MaxSegment int    `mapstructure:"max_segment_bytes"`
}

// RecognitionConfig configures the dual-engine transcription strategy
type RecognitionConfig struct {
	FastURL             string        `mapstructure:"fast_url"`     // local vosk-server
	AccurateURL         string        `mapstructure:"accurate_url"` // local whisper.cpp server
	Language            string        `mapstructure:"language"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	ShortCommandBound   time.Duration `mapstructure:"short_command_bound"`
	AccurateTimeout     time.Duration `mapstructure:"accurate_timeout"`
	EngineTimeout       time.Duration `mapstructure:"engine_timeout"`
}

// CatalogConfig configures the entity cache
type CatalogConfig struct {
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	MaxSuggestions      int           `mapstructure:"max_suggestions"`
}

// NLPConfig configures command resolution
type NLPConfig struct {
	ContextTimeout time.Duration `mapstructure:"context_timeout"`
	VolumeStep     int           `mapstructure:"volume_step"`
}

// SubsonicConfig configures the remote music server client
type SubsonicConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ClientName     string        `mapstructure:"client_name"`
	APIVersion     string        `mapstructure:"api_version"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PoolSize       int           `mapstructure:"pool_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	SearchCacheTTL time.Duration `mapstructure:"search_cache_ttl"`
	CacheMaxSize   int           `mapstructure:"cache_max_size"`
	BatchWindow    time.Duration `mapstructure:"batch_window"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// PipelineConfig configures the utterance pipeline
type PipelineConfig struct {
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout"`
	ExecuteTimeout    time.Duration `mapstructure:"execute_timeout"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
}

// RedisConfig configures the optional Redis Streams transport
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	AckStream string `mapstructure:"ack_stream"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Log: LogConfig{
			Dir:     filepath.Join(home, ".voiced", "logs"),
			Level:   "info",
			Console: true,
		},
		Ingest: IngestConfig{
			ListenAddr: "127.0.0.1:7700",
			SampleRate: 16000,
			MaxSegment: 2 << 20, // 2 MiB, ~65 s of 16 kHz mono PCM
		},
		Recognition: RecognitionConfig{
			FastURL:             "http://localhost:2700",
			AccurateURL:         "http://localhost:8089",
			Language:            "it",
			ConfidenceThreshold: 0.7,
			ShortCommandBound:   2 * time.Second,
			AccurateTimeout:     5 * time.Second,
			EngineTimeout:       10 * time.Second,
		},
		Catalog: CatalogConfig{
			RefreshInterval:     30 * time.Minute,
			SimilarityThreshold: 0.6,
			MaxSuggestions:      3,
		},
		NLP: NLPConfig{
			ContextTimeout: 5 * time.Minute,
			VolumeStep:     10,
		},
		Subsonic: SubsonicConfig{
			BaseURL:        "http://localhost:4533",
			Username:       "admin",
			Password:       "",
			ClientName:     "voiced",
			APIVersion:     "1.16.1",
			Timeout:        30 * time.Second,
			PoolSize:       10,
			MaxRetries:     3,
			RetryBaseDelay: 250 * time.Millisecond,
			BackoffFactor:  1.5,
			CacheTTL:       15 * time.Minute,
			SearchCacheTTL: 2 * time.Minute,
			CacheMaxSize:   500,
			BatchWindow:    100 * time.Millisecond,
			BatchSize:      5,
		},
		Pipeline: PipelineConfig{
			Workers:           4,
			QueueSize:         16,
			TranscribeTimeout: 15 * time.Second,
			ResolveTimeout:    2 * time.Second,
			ExecuteTimeout:    30 * time.Second,
			DrainTimeout:      30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			DB:        0,
			AckStream: "voiced:playback-acks",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9177",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".voiced")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VOICED")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Watch reloads the config on file changes and invokes onChange with the
// fresh copy. Thresholds read per-utterance pick the new values up without
// a restart.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".voiced")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("log", cfg.Log)
	viper.Set("ingest", cfg.Ingest)
	viper.Set("recognition", cfg.Recognition)
	viper.Set("catalog", cfg.Catalog)
	viper.Set("nlp", cfg.NLP)
	viper.Set("subsonic", cfg.Subsonic)
	viper.Set("pipeline", cfg.Pipeline)
	viper.Set("redis", cfg.Redis)
	viper.Set("metrics", cfg.Metrics)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".voiced"), nil
}
