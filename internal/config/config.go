package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HistorySize is the number of entries kept in the rolling alert history.
const HistorySize = 5

// Config is the top-level vigil configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Probe     ProbeConfig     `yaml:"probe"`
	Detection DetectionConfig `yaml:"detection"`
	Video     VideoConfig     `yaml:"video"`
	Cache     CacheConfig     `yaml:"cache"`
	Webhooks  []Webhook       `yaml:"webhooks"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds dashboard server settings.
type ServerConfig struct {
	Port     int    `yaml:"port" env:"VIGIL_PORT"`
	Bind     string `yaml:"bind" env:"VIGIL_BIND"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level" env:"VIGIL_LOG_LEVEL"`
}

// BackendConfig points at the detection backend.
type BackendConfig struct {
	URL          string        `yaml:"url" env:"VIGIL_BACKEND_URL"`
	WSURL        string        `yaml:"ws_url,omitempty" env:"VIGIL_BACKEND_WS_URL"` // defaults to URL
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"VIGIL_PROBE_TIMEOUT"`
}

// ProbeConfig controls the reachability probe loop.
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval" env:"VIGIL_PROBE_INTERVAL"` // 0 = probe once at startup
}

// DetectionConfig controls the detection subscription.
type DetectionConfig struct {
	Narration   bool `yaml:"narration" env:"VIGIL_NARRATION"`
	HistorySize int  `yaml:"history_size"`
}

// VideoConfig holds the video feed defaults.
type VideoConfig struct {
	DefaultID string `yaml:"default_id" env:"VIGIL_VIDEO_ID"`
}

// CacheConfig configures the backend history cache.
type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl" env:"VIGIL_CACHE_TTL"`
	RedisAddr string        `yaml:"redis_addr,omitempty" env:"VIGIL_REDIS_ADDR"` // empty = in-memory
}

// Webhook defines an outgoing alert notification endpoint.
type Webhook struct {
	URL      string   `yaml:"url"`
	Events   []string `yaml:"events"` // gun, knife, multiple_persons, person
	Template string   `yaml:"template,omitempty"`

	// AllowPrivate permits LAN and loopback targets such as a home hub.
	AllowPrivate bool `yaml:"allow_private,omitempty"`
}

// TelemetryConfig toggles tracing output.
type TelemetryConfig struct {
	TraceStdout bool `yaml:"trace_stdout" env:"VIGIL_TRACE_STDOUT"`
}

// Load reads a vigil config file, then applies .env and VIGIL_* overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Backend.ProbeTimeout == 0 {
		cfg.Backend.ProbeTimeout = 5 * time.Second
	}
	if cfg.Detection.HistorySize == 0 {
		cfg.Detection.HistorySize = HistorySize
	}
	if cfg.Video.DefaultID == "" {
		cfg.Video.DefaultID = "7"
	}

	return cfg, nil
}

// LoadOrDefaults loads path, falling back to defaults (with env overrides)
// when the file does not exist.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// A missing .env file is the normal case.
	_ = godotenv.Load()
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Backend: BackendConfig{
			URL:          "http://localhost:5000",
			ProbeTimeout: 5 * time.Second,
		},
		Probe: ProbeConfig{
			Interval: 15 * time.Second,
		},
		Detection: DetectionConfig{
			HistorySize: HistorySize,
		},
		Video: VideoConfig{
			DefaultID: "7",
		},
		Cache: CacheConfig{
			TTL: 10 * time.Second,
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ChannelURL returns the push-channel endpoint, defaulting to the HTTP URL.
func (c *Config) ChannelURL() string {
	if c.Backend.WSURL != "" {
		return c.Backend.WSURL
	}
	return c.Backend.URL
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if err := validateBaseURL("backend.url", c.Backend.URL); err != nil {
		return err
	}
	if c.Backend.WSURL != "" {
		if err := validateBaseURL("backend.ws_url", c.Backend.WSURL); err != nil {
			return err
		}
	}
	if c.Backend.ProbeTimeout <= 0 {
		return fmt.Errorf("backend.probe_timeout must be positive")
	}
	if c.Probe.Interval < 0 {
		return fmt.Errorf("probe.interval must not be negative")
	}
	if c.Detection.HistorySize != HistorySize {
		return fmt.Errorf("detection.history_size must be %d", HistorySize)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log_level %q", c.Server.LogLevel)
	}
	for _, wh := range c.Webhooks {
		for _, ev := range wh.Events {
			switch ev {
			case "gun", "knife", "multiple_persons", "person":
				// valid
			default:
				return fmt.Errorf("webhook %q has invalid event %q", wh.URL, ev)
			}
		}
	}
	return nil
}

func validateBaseURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", key)
	}
	return nil
}
