package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Masking    MaskingConfig    `yaml:"masking" mapstructure:"masking"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Activation ActivationConfig `yaml:"activation" mapstructure:"activation"`
	Pages      PagesConfig      `yaml:"pages" mapstructure:"pages"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Upstream   UpstreamConfig   `yaml:"upstream" mapstructure:"upstream"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// MaskingConfig controls document traversal
type MaskingConfig struct {
	MaxFrameDepth     int           `yaml:"max_frame_depth" mapstructure:"max_frame_depth"`
	FrameFetchTimeout time.Duration `yaml:"frame_fetch_timeout" mapstructure:"frame_fetch_timeout"`
	SettingsTimeout   time.Duration `yaml:"settings_timeout" mapstructure:"settings_timeout"`
}

// StoreConfig selects the settings key-value backend
type StoreConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"` // memory, file, redis or postgres
	FilePath    string `yaml:"file_path" mapstructure:"file_path"`
	RedisURL    string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix   string `yaml:"key_prefix" mapstructure:"key_prefix"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ActivationConfig lists the page URLs the console proxy masks
type ActivationConfig struct {
	Matches []string `yaml:"matches" mapstructure:"matches"`
}

// PagesConfig bounds the live document registry
type PagesConfig struct {
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxPages        int           `yaml:"max_pages" mapstructure:"max_pages"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// UpstreamConfig contains upstream console configuration
type UpstreamConfig struct {
	Console string        `yaml:"console" mapstructure:"console"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Path           string        `yaml:"path" mapstructure:"path"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	Username       string        `yaml:"username" mapstructure:"username"`
	Password       string        `yaml:"password" mapstructure:"password"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Masking: MaskingConfig{
			MaxFrameDepth:     8,
			FrameFetchTimeout: 5 * time.Second,
			SettingsTimeout:   2 * time.Second,
		},
		Store: StoreConfig{
			Backend:   "memory",
			FilePath:  "consolemask-settings.json",
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "consolemask",
		},
		Activation: ActivationConfig{
			Matches: []string{
				"https://*.console.aws.amazon.com/*",
				"https://console.aws.amazon.com/*",
			},
		},
		Pages: PagesConfig{
			TTL:             30 * time.Minute,
			MaxPages:        256,
			CleanupInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			Burst:          50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			Console: "https://console.aws.amazon.com",
			Timeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			PingInterval:   54 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 4096,
		},
	}
	cfg.Logging.File.Path = "logs/consolemask.log"
	return cfg
}
