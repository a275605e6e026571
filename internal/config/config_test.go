package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.EffectiveBaseURL(); got != defaultBaseURL {
		t.Fatalf("EffectiveBaseURL = %q", got)
	}
	if got := cfg.EffectiveMaxAttempts(); got != defaultMaxAttempts {
		t.Fatalf("EffectiveMaxAttempts = %d", got)
	}
	if got := cfg.EffectiveStallTimeout(); got != defaultStallTimeout {
		t.Fatalf("EffectiveStallTimeout = %v", got)
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	in := &Config{
		APIBaseURL:          "http://localhost:8080/v1",
		Model:               "test-model",
		StallTimeoutSeconds: 5,
		MaxAttempts:         2,
		StageDelayMs:        10,
		LogFormat:           "json",
		LogLevel:            "debug",
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No stray temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file still present: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.EffectiveBaseURL() != "http://localhost:8080/v1" {
		t.Fatalf("base url = %q", out.EffectiveBaseURL())
	}
	if out.EffectiveModel() != "test-model" {
		t.Fatalf("model = %q", out.EffectiveModel())
	}
	if out.EffectiveStallTimeout() != 5*time.Second {
		t.Fatalf("stall timeout = %v", out.EffectiveStallTimeout())
	}
	if out.EffectiveMaxAttempts() != 2 {
		t.Fatalf("max attempts = %d", out.EffectiveMaxAttempts())
	}
	if out.EffectiveStageDelay() != 10*time.Millisecond {
		t.Fatalf("stage delay = %v", out.EffectiveStageDelay())
	}
	if out.EffectiveLogFormat() != "json" || out.EffectiveLogLevel() != "debug" {
		t.Fatalf("log config = %q/%q", out.EffectiveLogFormat(), out.EffectiveLogLevel())
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"bad scheme", Config{APIBaseURL: "ftp://example.com"}},
		{"no host", Config{APIBaseURL: "https://"}},
		{"bad log format", Config{LogFormat: "xml"}},
		{"bad log level", Config{LogLevel: "verbose"}},
		{"negative stall", Config{StallTimeoutSeconds: -1}},
		{"excess attempts", Config{MaxAttempts: maxConfigMaxAttempts + 1}},
		{"negative delay", Config{StageDelayMs: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConfig_EffectiveMaxAttemptsClamped(t *testing.T) {
	t.Parallel()

	cfg := &Config{MaxAttempts: 100}
	if got := cfg.EffectiveMaxAttempts(); got != maxConfigMaxAttempts {
		t.Fatalf("EffectiveMaxAttempts = %d, want %d", got, maxConfigMaxAttempts)
	}
}

func TestConfig_APIKeyFromCustomEnv(t *testing.T) {
	cfg := &Config{APIKeyEnv: "GAMESMITH_TEST_KEY"}

	t.Setenv("GAMESMITH_TEST_KEY", "")
	if _, err := cfg.APIKey(); err == nil {
		t.Fatalf("expected error for empty credential")
	}

	t.Setenv("GAMESMITH_TEST_KEY", "  sk-test  ")
	key, err := cfg.APIKey()
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "sk-test" {
		t.Fatalf("key = %q", key)
	}
}

func TestConfig_NilReceiverDefaults(t *testing.T) {
	t.Parallel()

	var cfg *Config
	if cfg.EffectiveBaseURL() != defaultBaseURL {
		t.Fatalf("nil EffectiveBaseURL = %q", cfg.EffectiveBaseURL())
	}
	if cfg.EffectiveLogFormat() != "text" {
		t.Fatalf("nil EffectiveLogFormat = %q", cfg.EffectiveLogFormat())
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("nil Validate should error")
	}
}
