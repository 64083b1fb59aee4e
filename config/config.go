// Package config loads and validates the gateway configuration from a YAML
// file with environment variable overrides. No credential or model identifier
// is ever hard-coded: the upstream API key must come from the file or the
// environment, and startup fails without it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values. Rate limit defaults match the deployed
// behavior of the assistive guidance service: 25 requests per 50 second
// window, at most one admitted frame per second.
const (
	DefaultPort            = 3000
	DefaultUpstreamBaseURL = "https://api.siliconflow.cn/v1"
	DefaultRateLimit       = 25
	DefaultRateWindowMS    = 50000
	DefaultMinIntervalMS   = 1000
	DefaultImageMaxWidth   = 1024
	DefaultImageMaxHeight  = 1024
	DefaultImageQuality    = 85
	DefaultMaxBodyBytes    = 10 << 20
	DefaultRequestTimeout  = 60 * time.Second
	DefaultSessionIdleTTL  = time.Hour
)

// DefaultPrompt is sent as the user text when a frame arrives without one.
const DefaultPrompt = "Describe the important information in this scene."

// Environment variable names for overrides.
const (
	EnvAPIKey      = "SIGHTRELAY_API_KEY"
	EnvModel       = "SIGHTRELAY_MODEL"
	EnvUpstreamURL = "SIGHTRELAY_UPSTREAM_URL"
	EnvPort        = "SIGHTRELAY_PORT"
	EnvRedisAddr   = "SIGHTRELAY_REDIS_ADDR"
)

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Admission AdmissionConfig `yaml:"admission" json:"admission"`
	Image     ImageConfig     `yaml:"image" json:"image"`
	Redis     RedisConfig     `yaml:"redis,omitempty" json:"redis,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// ServerConfig configures the listening HTTP server.
type ServerConfig struct {
	// Port is the TCP port for the API server.
	Port int `yaml:"port" json:"port"`

	// MetricsPort exposes /metrics on a separate listener when non-zero.
	MetricsPort int `yaml:"metrics_port,omitempty" json:"metrics_port,omitempty"`

	// MaxBodyBytes caps request body size. Default 10 MB.
	MaxBodyBytes int64 `yaml:"max_body_bytes,omitempty" json:"max_body_bytes,omitempty"`
}

// UpstreamConfig describes the vision-capable chat-completion endpoint.
type UpstreamConfig struct {
	// BaseURL is the OpenAI-compatible API root, e.g. "https://api.example.com/v1".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is the access credential. Overridden by SIGHTRELAY_API_KEY.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model" json:"model"`

	// SystemPrompt is the fixed system instruction. Configuration data, not logic.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`

	// TimeoutSeconds bounds each upstream request. Default 60.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// AdmissionConfig controls the per-session frame admission gates.
type AdmissionConfig struct {
	// RateLimit is the maximum number of admitted frames per window.
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// RateWindowMS is the trailing window length in milliseconds.
	RateWindowMS int `yaml:"rate_window_ms" json:"rate_window_ms"`

	// MinFrameIntervalMS is the minimum spacing between admitted frames.
	MinFrameIntervalMS int `yaml:"min_frame_interval_ms" json:"min_frame_interval_ms"`

	// SessionIdleTTLSeconds evicts sessions idle longer than this. Default 3600.
	SessionIdleTTLSeconds int `yaml:"session_idle_ttl_seconds,omitempty" json:"session_idle_ttl_seconds,omitempty"`
}

// ImageConfig bounds frame normalization.
type ImageConfig struct {
	// MaxWidth and MaxHeight bound the normalized image dimensions.
	MaxWidth  int `yaml:"max_width" json:"max_width"`
	MaxHeight int `yaml:"max_height" json:"max_height"`

	// Quality is the JPEG encoding quality (1-100).
	Quality int `yaml:"quality" json:"quality"`
}

// RedisConfig enables a Redis-backed admission state store when Addr is set.
// With an empty Addr the gateway keeps admission state in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string            `yaml:"level,omitempty" json:"level,omitempty"`
	Format string            `yaml:"format,omitempty" json:"format,omitempty"` // "json" or "text"
	Fields map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// RateWindow returns the quota window as a duration.
func (a AdmissionConfig) RateWindow() time.Duration {
	return time.Duration(a.RateWindowMS) * time.Millisecond
}

// MinFrameInterval returns the interval gate spacing as a duration.
func (a AdmissionConfig) MinFrameInterval() time.Duration {
	return time.Duration(a.MinFrameIntervalMS) * time.Millisecond
}

// SessionIdleTTL returns the idle eviction TTL as a duration.
func (a AdmissionConfig) SessionIdleTTL() time.Duration {
	if a.SessionIdleTTLSeconds <= 0 {
		return DefaultSessionIdleTTL
	}
	return time.Duration(a.SessionIdleTTLSeconds) * time.Second
}

// Timeout returns the upstream request timeout as a duration.
func (u UpstreamConfig) Timeout() time.Duration {
	if u.TimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// Default returns a Config populated with defaults. The upstream credential
// and model are intentionally absent: they must be supplied externally.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Upstream: UpstreamConfig{
			BaseURL: DefaultUpstreamBaseURL,
		},
		Admission: AdmissionConfig{
			RateLimit:          DefaultRateLimit,
			RateWindowMS:       DefaultRateWindowMS,
			MinFrameIntervalMS: DefaultMinIntervalMS,
		},
		Image: ImageConfig{
			MaxWidth:  DefaultImageMaxWidth,
			MaxHeight: DefaultImageMaxHeight,
			Quality:   DefaultImageQuality,
		},
	}
}

// Load reads a YAML config file, applies environment overrides, fills
// defaults, and validates the result. Path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides replaces config values with environment variables when set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Upstream.Model = v
	}
	if v := os.Getenv(EnvUpstreamURL); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// fillDefaults replaces zero values that the schema would otherwise reject.
func (c *Config) fillDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if c.Admission.RateLimit == 0 {
		c.Admission.RateLimit = DefaultRateLimit
	}
	if c.Admission.RateWindowMS == 0 {
		c.Admission.RateWindowMS = DefaultRateWindowMS
	}
	if c.Admission.MinFrameIntervalMS == 0 {
		c.Admission.MinFrameIntervalMS = DefaultMinIntervalMS
	}
	if c.Image.MaxWidth == 0 {
		c.Image.MaxWidth = DefaultImageMaxWidth
	}
	if c.Image.MaxHeight == 0 {
		c.Image.MaxHeight = DefaultImageMaxHeight
	}
	if c.Image.Quality == 0 {
		c.Image.Quality = DefaultImageQuality
	}
}
