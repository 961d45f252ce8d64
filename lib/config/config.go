// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "HUDDLE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local homeservers and test identity tenants.
	Development Environment = "development"
	// Production is for real deployments.
	Production Environment = "production"
)

// Config is the master configuration for a Huddle client.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment" json:"environment"`

	Identity  IdentityConfig  `yaml:"identity" json:"identity"`
	Chat      ChatConfig      `yaml:"chat" json:"chat"`
	Directory DirectoryConfig `yaml:"directory" json:"directory"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts" json:"timeouts"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty" json:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Identity  *IdentityConfig  `yaml:"identity,omitempty" json:"identity,omitempty"`
	Chat      *ChatConfig      `yaml:"chat,omitempty" json:"chat,omitempty"`
	Directory *DirectoryConfig `yaml:"directory,omitempty" json:"directory,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty" json:"log,omitempty"`
}

// IdentityConfig locates the identity provider.
type IdentityConfig struct {
	// IssuerURL is the base URL serving /userinfo.
	IssuerURL string `yaml:"issuer_url" json:"issuer_url"`

	// ManagementURL is the base URL of the management API serving
	// /api/v2/users/{id}. Usually the same tenant as IssuerURL.
	ManagementURL string `yaml:"management_url" json:"management_url"`
}

// ChatConfig configures the chat backend connection and session defaults.
type ChatConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver.
	HomeserverURL string `yaml:"homeserver_url" json:"homeserver_url"`

	// TokenProviderURL issues chat access tokens for a resolved email.
	TokenProviderURL string `yaml:"token_provider_url" json:"token_provider_url"`

	// DefaultRoom is the room name the pipeline opens after connecting.
	// Default: General
	DefaultRoom string `yaml:"default_room" json:"default_room"`

	// HistoryLimit is the number of messages fetched when a room opens.
	// Default: 100
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`

	// MessageLimit is the number of recent messages replayed when a
	// subscription starts. Default: 100
	MessageLimit int `yaml:"message_limit" json:"message_limit"`

	// SendRate is the sustained message send rate per second.
	// Default: 5
	SendRate float64 `yaml:"send_rate" json:"send_rate"`

	// SendBurst is the number of messages that may be sent back to back.
	// Default: 5
	SendBurst int `yaml:"send_burst" json:"send_burst"`

	// SyncRetries bounds consecutive transport-level /sync failures a
	// subscription absorbs before reporting an error. Default: 5
	SyncRetries int `yaml:"sync_retries" json:"sync_retries"`
}

// DirectoryConfig locates the user directory service.
type DirectoryConfig struct {
	// URL is the base URL serving GET /users.
	URL string `yaml:"url" json:"url"`
}

// TimeoutsConfig bounds each pipeline stage. Values use
// time.ParseDuration syntax ("15s", "1m").
type TimeoutsConfig struct {
	Resolve   string `yaml:"resolve" json:"resolve"`
	Connect   string `yaml:"connect" json:"connect"`
	Fetch     string `yaml:"fetch" json:"fetch"`
	Subscribe string `yaml:"subscribe" json:"subscribe"`
	Directory string `yaml:"directory" json:"directory"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level" json:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics (e.g., "127.0.0.1:9464").
	// Empty disables the endpoint.
	Listen string `yaml:"listen" json:"listen"`
}

// StageTimeouts holds the parsed TimeoutsConfig.
type StageTimeouts struct {
	Resolve   time.Duration
	Connect   time.Duration
	Fetch     time.Duration
	Subscribe time.Duration
	Directory time.Duration
}

// Default returns the configuration every loaded file is merged onto.
// Endpoint URLs have no defaults: a client pointed at nothing should
// fail validation rather than connect somewhere surprising.
func Default() *Config {
	return &Config{
		Environment: Development,
		Chat: ChatConfig{
			DefaultRoom:  "General",
			HistoryLimit: 100,
			MessageLimit: 100,
			SendRate:     5,
			SendBurst:    5,
			SyncRetries:  5,
		},
		Timeouts: TimeoutsConfig{
			Resolve:   "15s",
			Connect:   "20s",
			Fetch:     "15s",
			Subscribe: "20s",
			Directory: "10s",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads configuration from the file named by HUDDLE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your huddle.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges one file into the current config. The format is
// chosen by extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Identity != nil {
		overrideString(&c.Identity.IssuerURL, overrides.Identity.IssuerURL)
		overrideString(&c.Identity.ManagementURL, overrides.Identity.ManagementURL)
	}

	if overrides.Chat != nil {
		overrideString(&c.Chat.HomeserverURL, overrides.Chat.HomeserverURL)
		overrideString(&c.Chat.TokenProviderURL, overrides.Chat.TokenProviderURL)
		overrideString(&c.Chat.DefaultRoom, overrides.Chat.DefaultRoom)
		if overrides.Chat.HistoryLimit != 0 {
			c.Chat.HistoryLimit = overrides.Chat.HistoryLimit
		}
		if overrides.Chat.MessageLimit != 0 {
			c.Chat.MessageLimit = overrides.Chat.MessageLimit
		}
		if overrides.Chat.SendRate != 0 {
			c.Chat.SendRate = overrides.Chat.SendRate
		}
		if overrides.Chat.SendBurst != 0 {
			c.Chat.SendBurst = overrides.Chat.SendBurst
		}
		if overrides.Chat.SyncRetries != 0 {
			c.Chat.SyncRetries = overrides.Chat.SyncRetries
		}
	}

	if overrides.Directory != nil {
		overrideString(&c.Directory.URL, overrides.Directory.URL)
	}

	if overrides.Log != nil {
		overrideString(&c.Log.Level, overrides.Log.Level)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in endpoint fields.
func (c *Config) expandVariables() {
	c.Identity.IssuerURL = expandVars(c.Identity.IssuerURL)
	c.Identity.ManagementURL = expandVars(c.Identity.ManagementURL)
	c.Chat.HomeserverURL = expandVars(c.Chat.HomeserverURL)
	c.Chat.TokenProviderURL = expandVars(c.Chat.TokenProviderURL)
	c.Directory.URL = expandVars(c.Directory.URL)
	c.Metrics.Listen = expandVars(c.Metrics.Listen)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// process environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// StageTimeouts parses the stage timeouts. Validate reports the same errors.
func (c *Config) StageTimeouts() (StageTimeouts, error) {
	var errs []error
	parse := func(name, value string) time.Duration {
		duration, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("timeouts.%s: %w", name, err))
			return 0
		}
		if duration <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be positive, got %s", name, value))
		}
		return duration
	}
	timeouts := StageTimeouts{
		Resolve:   parse("resolve", c.Timeouts.Resolve),
		Connect:   parse("connect", c.Timeouts.Connect),
		Fetch:     parse("fetch", c.Timeouts.Fetch),
		Subscribe: parse("subscribe", c.Timeouts.Subscribe),
		Directory: parse("directory", c.Timeouts.Directory),
	}
	if len(errs) > 0 {
		return StageTimeouts{}, errors.Join(errs...)
	}
	return timeouts, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	for _, endpoint := range []struct {
		name  string
		value string
	}{
		{"identity.issuer_url", c.Identity.IssuerURL},
		{"identity.management_url", c.Identity.ManagementURL},
		{"chat.homeserver_url", c.Chat.HomeserverURL},
		{"chat.token_provider_url", c.Chat.TokenProviderURL},
		{"directory.url", c.Directory.URL},
	} {
		if err := validateURL(endpoint.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", endpoint.name, err))
		}
	}

	if c.Chat.DefaultRoom == "" {
		errs = append(errs, fmt.Errorf("chat.default_room is required"))
	}
	if c.Chat.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("chat.history_limit must be positive, got %d", c.Chat.HistoryLimit))
	}
	if c.Chat.MessageLimit < 0 {
		errs = append(errs, fmt.Errorf("chat.message_limit must not be negative, got %d", c.Chat.MessageLimit))
	}
	if c.Chat.SendRate <= 0 {
		errs = append(errs, fmt.Errorf("chat.send_rate must be positive, got %v", c.Chat.SendRate))
	}
	if c.Chat.SendBurst <= 0 {
		errs = append(errs, fmt.Errorf("chat.send_burst must be positive, got %d", c.Chat.SendBurst))
	}
	if c.Chat.SyncRetries < 0 {
		errs = append(errs, fmt.Errorf("chat.sync_retries must not be negative, got %d", c.Chat.SyncRetries))
	}

	if _, err := c.StageTimeouts(); err != nil {
		errs = append(errs, err)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("has no host: %q", raw)
	}
	return nil
}
