// Package config provides configuration management for the softap
// lifecycle daemon.
//
// The daemon configuration is loaded from a JSON file (default:
// /etc/softapd/config.json) and contains settings for the persisted
// config store, the default AP capability/configuration used until an
// UpdateConfiguration/UpdateCapability call replaces it, the debug HTTP
// surface, and logging.
//
// Configuration Structure:
//   - Store: BadgerDB path and garbage-collection interval
//   - Defaults: the CapabilityProvider defaults (shutdown/bridged-idle
//     timeouts) and the ApConfiguration served until an AP has its own
//   - DebugAPI: host, port, rate limiting
//   - Logging: log level and file path
//
// LoadConfig reads and parses the configuration file, validates required
// fields, and returns a Config. Default values are provided for optional
// fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kestrel-systems/softap-lifecycle/internal/lifecycle"
)

// Config is the complete daemon configuration.
type Config struct {
	Store    StoreConfig    `json:"store"`
	Defaults DefaultsConfig `json:"defaults"`
	DebugAPI DebugAPIConfig `json:"debug_api"`
	Logging  LoggingConfig  `json:"logging"`
}

// StoreConfig points at the persisted ConfigStore's backing BadgerDB.
type StoreConfig struct {
	Path       string `json:"path"`
	GCInterval int    `json:"gc_interval_minutes"`
}

// DefaultsConfig seeds the CapabilityProvider and the configuration served
// for an AP id the store has never seen, and names the single AP this
// daemon brings up at startup.
type DefaultsConfig struct {
	ID                   string                    `json:"id"`
	Role                 string                    `json:"role"`
	Requestor            string                    `json:"requestor"`
	ShutdownTimeoutMS    int                       `json:"shutdown_timeout_ms"`
	BridgedIdleTimeoutMS int                       `json:"bridged_idle_timeout_ms"`
	Capability           lifecycle.Capability      `json:"capability"`
	ApConfiguration      lifecycle.ApConfiguration `json:"ap_configuration"`
}

// ResolvedRole maps the Role string to the lifecycle.Role enum, defaulting
// to tethered (I7: role is fixed at construction, so an unrecognized
// string must resolve to something rather than zero-value silently).
func (d DefaultsConfig) ResolvedRole() lifecycle.Role {
	if d.Role == "local-only" {
		return lifecycle.RoleLocalOnly
	}
	return lifecycle.RoleTethered
}

// DebugAPIConfig controls the introspection/control HTTP surface (§6).
type DebugAPIConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:       "/var/lib/softapd/store",
			GCInterval: 15,
		},
		Defaults: DefaultsConfig{
			ID:                   "softap0",
			Role:                 "tethered",
			Requestor:            "system",
			ShutdownTimeoutMS:    600_000,
			BridgedIdleTimeoutMS: 300_000,
			Capability: lifecycle.Capability{
				MaxSupportedClients:   8,
				ClientForceDisconnect: true,
			},
			ApConfiguration: lifecycle.ApConfiguration{
				SSID:                "softap",
				Bands:               []lifecycle.Band{lifecycle.Band2Point4GHz},
				AutoShutdownEnabled: true,
			},
		},
		DebugAPI: DebugAPIConfig{
			Host:               "127.0.0.1",
			Port:               9090,
			RateLimitPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "/var/log/softapd/softapd.log",
		},
	}
}

// LoadConfig loads configuration from a JSON file, starting from
// DefaultConfig and overlaying whatever the file specifies.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is self-consistent.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.GCInterval < 1 {
		return fmt.Errorf("store GC interval must be at least 1 minute")
	}

	if c.Defaults.ShutdownTimeoutMS < 0 {
		return fmt.Errorf("default shutdown timeout cannot be negative")
	}
	if c.Defaults.BridgedIdleTimeoutMS < 0 {
		return fmt.Errorf("default bridged idle timeout cannot be negative")
	}

	if c.DebugAPI.Port < 1 || c.DebugAPI.Port > 65535 {
		return fmt.Errorf("debug API port must be between 1 and 65535")
	}
	if c.DebugAPI.Host == "" {
		return fmt.Errorf("debug API host cannot be empty")
	}
	if c.DebugAPI.RateLimitPerMinute < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per minute")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.File != "" {
		logDir := filepath.Dir(c.Logging.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("cannot create log directory %s: %w", logDir, err)
		}
	}

	return nil
}
