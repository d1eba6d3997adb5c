// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for projchat.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.projchat/config.toml
//   - ~/.projchat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/projchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete projchat configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" json:"server"`
	Assistant AssistantConfig `toml:"assistant" json:"assistant"`
	Files     FilesConfig     `toml:"files" json:"files"`
	Log       LogConfig       `toml:"log" json:"log"`
	Metrics   MetricsConfig   `toml:"metrics" json:"metrics"`
	UI        UIConfig        `toml:"ui" json:"ui"`
}

// ServerConfig locates the collaborator server.
type ServerConfig struct {
	// BaseURL is the server root, without the /api suffix
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs bounds every HTTP request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// AssistantConfig controls the external assistant process.
type AssistantConfig struct {
	// Mode is passed to the server on start (e.g. "chat", "code")
	Mode string `toml:"mode" json:"mode"`
	// AutoStart starts the assistant for the selected project on launch
	AutoStart bool `toml:"auto_start" json:"auto_start"`
	// PollIntervalMs is the status poll interval while starting
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`
	// StartTimeoutSecs bounds how long a start may stay in "starting"
	StartTimeoutSecs int `toml:"start_timeout_secs" json:"start_timeout_secs"`
}

// FilesConfig controls file tree fetching.
type FilesConfig struct {
	// Recursive requests the whole tree in one listing
	Recursive bool `toml:"recursive" json:"recursive"`
	// Watch refreshes the tree when the local project directory changes
	Watch bool `toml:"watch" json:"watch"`
	// WatchDebounceMs coalesces bursts of filesystem events
	WatchDebounceMs int `toml:"watch_debounce_ms" json:"watch_debounce_ms"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `toml:"addr" json:"addr"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	// GlamourStyle is "auto", "dark", "light", "notty" or "ascii"
	GlamourStyle string `toml:"glamour_style" json:"glamour_style"`
	// MaxTreeWidth truncates tree rows to this many display columns
	MaxTreeWidth int `toml:"max_tree_width" json:"max_tree_width"`
}

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://127.0.0.1:5001",
			TimeoutSecs: 120,
		},
		Assistant: AssistantConfig{
			Mode:             "chat",
			AutoStart:        false,
			PollIntervalMs:   1000,
			StartTimeoutSecs: 120,
		},
		Files: FilesConfig{
			Recursive:       true,
			Watch:           false,
			WatchDebounceMs: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			GlamourStyle: "auto",
			MaxTreeWidth: 100,
		},
	}
}

// Timeout returns the HTTP request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// PollInterval returns the assistant status poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Assistant.PollIntervalMs) * time.Millisecond
}

// StartTimeout returns the assistant start timeout.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Assistant.StartTimeoutSecs) * time.Second
}

// WatchDebounce returns the watcher debounce window.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Files.WatchDebounceMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the projchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".projchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Keys missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults replaces zero values a file may have set explicitly.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if cfg.Assistant.Mode == "" {
		cfg.Assistant.Mode = defaults.Assistant.Mode
	}
	if cfg.Assistant.PollIntervalMs == 0 {
		cfg.Assistant.PollIntervalMs = defaults.Assistant.PollIntervalMs
	}
	if cfg.Assistant.StartTimeoutSecs == 0 {
		cfg.Assistant.StartTimeoutSecs = defaults.Assistant.StartTimeoutSecs
	}
	if cfg.Files.WatchDebounceMs == 0 {
		cfg.Files.WatchDebounceMs = defaults.Files.WatchDebounceMs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.UI.GlamourStyle == "" {
		cfg.UI.GlamourStyle = defaults.UI.GlamourStyle
	}
	if cfg.UI.MaxTreeWidth == 0 {
		cfg.UI.MaxTreeWidth = defaults.UI.MaxTreeWidth
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# projchat configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats   = map[string]bool{"console": true, "json": true}
	validGlamourStyle = map[string]bool{"auto": true, "dark": true, "light": true, "notty": true, "ascii": true}
)

// Validate validates the configuration and returns any errors as ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Server.BaseURL),
		})
	}
	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 3600, got %d", c.Server.TimeoutSecs),
		})
	}

	if strings.TrimSpace(c.Assistant.Mode) == "" {
		errs = append(errs, ValidationError{Field: "assistant.mode", Message: "must not be empty"})
	}
	if c.Assistant.PollIntervalMs < 50 {
		errs = append(errs, ValidationError{
			Field:   "assistant.poll_interval_ms",
			Message: fmt.Sprintf("must be at least 50, got %d", c.Assistant.PollIntervalMs),
		})
	}
	if c.Assistant.StartTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "assistant.start_timeout_secs",
			Message: fmt.Sprintf("must be positive, got %d", c.Assistant.StartTimeoutSecs),
		})
	}

	if c.Files.WatchDebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "files.watch_debounce_ms",
			Message: fmt.Sprintf("must not be negative, got %d", c.Files.WatchDebounceMs),
		})
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Log.Format),
		})
	}

	if !validGlamourStyle[strings.ToLower(c.UI.GlamourStyle)] {
		errs = append(errs, ValidationError{
			Field:   "ui.glamour_style",
			Message: fmt.Sprintf("invalid style '%s', must be one of: auto, dark, light, notty, ascii", c.UI.GlamourStyle),
		})
	}
	if c.UI.MaxTreeWidth < 20 {
		errs = append(errs, ValidationError{
			Field:   "ui.max_tree_width",
			Message: fmt.Sprintf("must be at least 20, got %d", c.UI.MaxTreeWidth),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PROJCHAT_SERVER_URL: overrides server.base_url
//   - PROJCHAT_MODE: overrides assistant.mode
//   - PROJCHAT_LOG_LEVEL: overrides log.level
//   - PROJCHAT_AUTO_START: "1" or "true" enables assistant.auto_start
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PROJCHAT_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("PROJCHAT_MODE"); v != "" {
		c.Assistant.Mode = v
	}
	if v := os.Getenv("PROJCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PROJCHAT_AUTO_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Assistant.AutoStart = b
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
