// Package config loads and validates the treeline.yml client
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level treeline.yml configuration.
type Config struct {
	Redis    RedisConfig    `yaml:"redis"`
	User     UserConfig     `yaml:"user"`
	Log      LogConfig      `yaml:"log,omitempty"`
	Presence PresenceConfig `yaml:"presence,omitempty"`
	Undo     UndoConfig     `yaml:"undo,omitempty"`
}

// RedisConfig locates the Redis server backing the shared documents.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// UserConfig is the local user's collaboration identity, shown to other
// connections via presence and recorded on edit sessions and previews.
type UserConfig struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color,omitempty"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error
}

// PresenceConfig tunes presence heartbeats and expiry.
type PresenceConfig struct {
	TTLSeconds  int `yaml:"ttl_seconds,omitempty"`
	HeartbeatMs int `yaml:"heartbeat_ms,omitempty"`
}

// UndoConfig tunes undo-step grouping.
type UndoConfig struct {
	CaptureWindowMs int `yaml:"capture_window_ms,omitempty"`
}

// Default returns a configuration with every tunable at its default.
func Default() *Config {
	return &Config{
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Log:      LogConfig{Level: "info"},
		Presence: PresenceConfig{TTLSeconds: 30, HeartbeatMs: 5000},
		Undo:     UndoConfig{CaptureWindowMs: 300},
	}
}

// Load reads and validates a treeline.yml file, filling unset tunables
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Redis.Addr == "" {
		c.Redis.Addr = d.Redis.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Presence.TTLSeconds == 0 {
		c.Presence.TTLSeconds = d.Presence.TTLSeconds
	}
	if c.Presence.HeartbeatMs == 0 {
		c.Presence.HeartbeatMs = d.Presence.HeartbeatMs
	}
	if c.Undo.CaptureWindowMs == 0 {
		c.Undo.CaptureWindowMs = d.Undo.CaptureWindowMs
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.User.Name == "" {
		return fmt.Errorf("user.name is required")
	}
	if c.Presence.TTLSeconds <= 0 {
		return fmt.Errorf("presence.ttl_seconds must be positive")
	}
	if c.Presence.HeartbeatMs <= 0 {
		return fmt.Errorf("presence.heartbeat_ms must be positive")
	}
	if time.Duration(c.Presence.HeartbeatMs)*time.Millisecond >= c.PresenceTTL() {
		return fmt.Errorf("presence.heartbeat_ms must be shorter than presence.ttl_seconds")
	}
	if c.Undo.CaptureWindowMs <= 0 {
		return fmt.Errorf("undo.capture_window_ms must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.Log.Level)
	}
	return nil
}

// PresenceTTL returns the presence expiry as a duration.
func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.Presence.TTLSeconds) * time.Second
}

// PresenceHeartbeat returns the heartbeat interval as a duration.
func (c *Config) PresenceHeartbeat() time.Duration {
	return time.Duration(c.Presence.HeartbeatMs) * time.Millisecond
}

// UndoCaptureWindow returns the undo grouping window as a duration.
func (c *Config) UndoCaptureWindow() time.Duration {
	return time.Duration(c.Undo.CaptureWindowMs) * time.Millisecond
}
