// Package config loads the client configuration from an optional YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Audio   AudioConfig   `yaml:"audio"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServiceConfig describes the update service endpoint.
type ServiceConfig struct {
	// BaseURL is the service address; http(s) schemes are upgraded to
	// websocket schemes at connect time.
	BaseURL string `yaml:"base_url"`
	// Token is the session credential. Usually left empty in the file
	// and supplied via DICTATE_TOKEN.
	Token string `yaml:"token"`
}

// AudioConfig contains capture and uplink tuning.
type AudioConfig struct {
	// Device selects a capture device by name substring; empty uses the
	// default input.
	Device     string `yaml:"device"`
	DisableAGC bool   `yaml:"disable_agc"`
	// AutoStop arms the silence monitor's 30 s auto-stop.
	AutoStop bool `yaml:"auto_stop"`
	// ChunkMs is the uplink chunk size in milliseconds of audio.
	ChunkMs int `yaml:"chunk_ms"`
	// Backlog is "block" or "drop_oldest".
	Backlog      string `yaml:"backlog"`
	BacklogDepth int    `yaml:"backlog_depth"`
}

// ArchiveConfig controls the diagnostic FLAC dump of finished captures.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoggingConfig points the file logger somewhere.
type LoggingConfig struct {
	Dir string `yaml:"dir"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL: "http://localhost:8090",
		},
		Audio: AudioConfig{
			ChunkMs:      200,
			Backlog:      "block",
			BacklogDepth: 128,
		},
		Metrics: MetricsConfig{
			Listen: "localhost:9101",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error; a missing
// explicit path is.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Environment overrides, highest precedence. DICTATE_TOKEN deliberately
// has no file default so credentials stay out of dotfiles.
func (c *Config) applyEnv() {
	if v := os.Getenv("DICTATE_SERVER"); v != "" {
		c.Service.BaseURL = v
	}
	if v := os.Getenv("DICTATE_TOKEN"); v != "" {
		c.Service.Token = v
	}
	if v := os.Getenv("DICTATE_LOG_PATH"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("DICTATE_ARCHIVE_DIR"); v != "" {
		c.Archive.Dir = v
		c.Archive.Enabled = true
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}

func (s *ServiceConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.ChunkMs < 20 || a.ChunkMs > 2000 {
		return fmt.Errorf("chunk_ms must be between 20 and 2000, got %d", a.ChunkMs)
	}
	if a.Backlog != "block" && a.Backlog != "drop_oldest" {
		return fmt.Errorf("backlog must be 'block' or 'drop_oldest', got %q", a.Backlog)
	}
	if a.BacklogDepth < 1 {
		return fmt.Errorf("backlog_depth must be at least 1, got %d", a.BacklogDepth)
	}
	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Listen == "" {
		return fmt.Errorf("listen cannot be empty when metrics are enabled")
	}
	return nil
}
