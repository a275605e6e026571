// Package config holds the on-disk configuration for gamesmith.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBaseURL       = "https://api.openai.com/v1"
	defaultAPIKeyEnv     = "OPENAI_API_KEY"
	defaultModel         = "gpt-5-mini"
	defaultStallTimeout  = 90 * time.Second
	defaultMaxAttempts   = 3
	defaultStageDelay    = 1500 * time.Millisecond
	maxConfigMaxAttempts = 8
)

// Config is the on-disk configuration.
//
// The API key itself is never stored here; APIKeyEnv names the environment
// variable that carries it.
type Config struct {
	// APIBaseURL is the generation endpoint base.
	APIBaseURL string `json:"api_base_url,omitempty"`

	// Model is the model identifier sent with every request.
	Model string `json:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// DBPath overrides the generation record database location.
	DBPath string `json:"db_path,omitempty"`

	// PromptsPath points at an optional YAML file overriding the built-in
	// stage prompts.
	PromptsPath string `json:"prompts_path,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`

	// StallTimeoutSeconds is how long a stream may go without a delta
	// before the attempt is aborted.
	StallTimeoutSeconds int `json:"stall_timeout_seconds,omitempty"`

	// MaxAttempts bounds transport retries per stage.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// StageDelayMs is the pause between pipeline stages.
	StageDelayMs int `json:"stage_delay_ms,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if raw := strings.TrimSpace(c.APIBaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid api_base_url: %w", err)
		}
		scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("invalid api_base_url scheme %q", u.Scheme)
		}
		if strings.TrimSpace(u.Host) == "" {
			return errors.New("invalid api_base_url host")
		}
	}
	switch strings.TrimSpace(strings.ToLower(c.LogFormat)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	switch strings.TrimSpace(strings.ToLower(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.StallTimeoutSeconds < 0 {
		return fmt.Errorf("invalid stall_timeout_seconds %d", c.StallTimeoutSeconds)
	}
	if c.MaxAttempts < 0 || c.MaxAttempts > maxConfigMaxAttempts {
		return fmt.Errorf("invalid max_attempts %d (must be in [0,%d])", c.MaxAttempts, maxConfigMaxAttempts)
	}
	if c.StageDelayMs < 0 {
		return fmt.Errorf("invalid stage_delay_ms %d", c.StageDelayMs)
	}
	return nil
}

// DefaultConfigPath returns ~/.gamesmith/config.json, falling back to the
// working directory when the home dir cannot be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "gamesmith.config.json"
	}
	return filepath.Join(home, ".gamesmith", "config.json")
}

// DefaultDBPath returns the default record database path next to the config.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "gamesmith.sqlite"
	}
	return filepath.Join(home, ".gamesmith", "generations.sqlite")
}

// Load reads the config at path. A missing file yields an empty (all
// defaults) config rather than an error.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Config) EffectiveBaseURL() string {
	if c == nil || strings.TrimSpace(c.APIBaseURL) == "" {
		return defaultBaseURL
	}
	return strings.TrimSpace(c.APIBaseURL)
}

func (c *Config) EffectiveModel() string {
	if c == nil || strings.TrimSpace(c.Model) == "" {
		return defaultModel
	}
	return strings.TrimSpace(c.Model)
}

func (c *Config) EffectiveDBPath() string {
	if c == nil || strings.TrimSpace(c.DBPath) == "" {
		return DefaultDBPath()
	}
	return strings.TrimSpace(c.DBPath)
}

func (c *Config) EffectiveLogFormat() string {
	if c != nil && strings.TrimSpace(strings.ToLower(c.LogFormat)) == "json" {
		return "json"
	}
	return "text"
}

func (c *Config) EffectiveLogLevel() string {
	if c == nil {
		return "info"
	}
	switch v := strings.TrimSpace(strings.ToLower(c.LogLevel)); v {
	case "debug", "warn", "error":
		return v
	default:
		return "info"
	}
}

func (c *Config) EffectiveStallTimeout() time.Duration {
	if c == nil || c.StallTimeoutSeconds <= 0 {
		return defaultStallTimeout
	}
	return time.Duration(c.StallTimeoutSeconds) * time.Second
}

func (c *Config) EffectiveMaxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	if c.MaxAttempts > maxConfigMaxAttempts {
		return maxConfigMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Config) EffectiveStageDelay() time.Duration {
	if c == nil || c.StageDelayMs <= 0 {
		return defaultStageDelay
	}
	return time.Duration(c.StageDelayMs) * time.Millisecond
}

// APIKey resolves the credential from the configured environment variable.
// An empty result is a configuration error for the caller: fatal, no retry.
func (c *Config) APIKey() (string, error) {
	env := defaultAPIKeyEnv
	if c != nil && strings.TrimSpace(c.APIKeyEnv) != "" {
		env = strings.TrimSpace(c.APIKeyEnv)
	}
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" {
		return "", fmt.Errorf("missing credential: environment variable %s is empty", env)
	}
	return key, nil
}
