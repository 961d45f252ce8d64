// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validYAML = `
identity:
  issuer_url: https://tenant.example.com
  management_url: https://tenant.example.com
chat:
  homeserver_url: http://localhost:8008
  token_provider_url: http://localhost:8080/token
directory:
  url: http://localhost:8080
`

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Chat.DefaultRoom != "General" {
		t.Errorf("expected default_room=General, got %s", cfg.Chat.DefaultRoom)
	}
	if cfg.Chat.HistoryLimit != 100 || cfg.Chat.MessageLimit != 100 {
		t.Errorf("expected limits of 100, got history=%d message=%d", cfg.Chat.HistoryLimit, cfg.Chat.MessageLimit)
	}

	timeouts, err := cfg.StageTimeouts()
	if err != nil {
		t.Fatalf("StageTimeouts failed: %v", err)
	}
	if timeouts.Connect != 20*time.Second {
		t.Errorf("expected connect timeout 20s, got %v", timeouts.Connect)
	}
}

func TestLoad_RequiresHuddleConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when HUDDLE_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "HUDDLE_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithHuddleConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, writeConfig(t, "huddle.yaml", validYAML))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Chat.HomeserverURL != "http://localhost:8008" {
		t.Errorf("homeserver_url = %q", cfg.Chat.HomeserverURL)
	}
	// Unset fields keep their defaults.
	if cfg.Chat.DefaultRoom != "General" {
		t.Errorf("default_room = %q, want General", cfg.Chat.DefaultRoom)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "huddle.jsonc", `{
  // Local stack.
  "identity": {
    "issuer_url": "https://tenant.example.com",
    "management_url": "https://tenant.example.com",
  },
  "chat": {
    "homeserver_url": "http://localhost:8008",
    "token_provider_url": "http://localhost:8080/token",
    "default_room": "Lobby", /* not General */
  },
  "directory": {"url": "http://localhost:8080"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Chat.DefaultRoom != "Lobby" {
		t.Errorf("default_room = %q, want Lobby", cfg.Chat.DefaultRoom)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "huddle.yaml", validYAML+`
environment: production
production:
  chat:
    homeserver_url: https://matrix.example.com
    history_limit: 50
  log:
    level: warn
development:
  chat:
    homeserver_url: http://ignored
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Chat.HomeserverURL != "https://matrix.example.com" {
		t.Errorf("homeserver_url = %q", cfg.Chat.HomeserverURL)
	}
	if cfg.Chat.HistoryLimit != 50 {
		t.Errorf("history_limit = %d, want 50", cfg.Chat.HistoryLimit)
	}
	if cfg.Chat.MessageLimit != 100 {
		t.Errorf("message_limit = %d, want untouched default 100", cfg.Chat.MessageLimit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn", cfg.Log.Level)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("HUDDLE_TEST_HOMESERVER", "http://matrix.internal:8008")
	t.Setenv("HUDDLE_TEST_UNSET", "")

	tests := []struct {
		input string
		want  string
	}{
		{"${HUDDLE_TEST_HOMESERVER}", "http://matrix.internal:8008"},
		{"${HUDDLE_TEST_UNSET:-http://localhost:8008}", "http://localhost:8008"},
		{"${HUDDLE_TEST_UNSET}", ""},
		{"http://plain", "http://plain"},
	}
	for _, test := range tests {
		if got := expandVars(test.input); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Run("missing endpoints", func(t *testing.T) {
		err := Default().Validate()
		if err == nil {
			t.Fatal("expected error for default config without endpoints")
		}
		for _, field := range []string{"identity.issuer_url", "chat.homeserver_url", "directory.url"} {
			if !strings.Contains(err.Error(), field) {
				t.Errorf("error does not mention %s: %v", field, err)
			}
		}
	})

	t.Run("bad values", func(t *testing.T) {
		cfg, err := LoadFile(writeConfig(t, "huddle.yaml", validYAML))
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		cfg.Chat.HistoryLimit = 0
		cfg.Timeouts.Fetch = "soon"
		cfg.Log.Level = "loud"
		cfg.Directory.URL = "localhost:8080"

		err = cfg.Validate()
		if err == nil {
			t.Fatal("expected validation errors")
		}
		for _, fragment := range []string{"history_limit", "timeouts.fetch", "log.level", "directory.url"} {
			if !strings.Contains(err.Error(), fragment) {
				t.Errorf("error does not mention %s: %v", fragment, err)
			}
		}
	})
}
