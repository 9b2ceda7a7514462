package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chatanvil configuration file
type Config struct {
	// Provider is used when a command does not name one.
	Provider       string                      `yaml:"provider" toml:"provider"`
	Parser         string                      `yaml:"parser" toml:"parser"`
	LogDir         string                      `yaml:"log_dir" toml:"log_dir"`
	LogLevel       string                      `yaml:"log_level" toml:"log_level"`
	MaxChatHistory int                         `yaml:"max_chat_history" toml:"max_chat_history"`
	Retry          RetryConfig                 `yaml:"retry" toml:"retry"`
	Hooks          HooksConfig                 `yaml:"hooks" toml:"hooks"`
	Providers      map[string]ProviderSettings `yaml:"providers" toml:"providers"`
}

// RetryConfig holds backoff settings. Delays use time.ParseDuration syntax.
type RetryConfig struct {
	MaxRetries *int   `yaml:"max_retries" toml:"max_retries"`
	BaseDelay  string `yaml:"base_delay" toml:"base_delay"`
	MaxDelay   string `yaml:"max_delay" toml:"max_delay"`
	Jitter     bool   `yaml:"jitter" toml:"jitter"`
}

// HooksConfig contains hook-related settings
type HooksConfig struct {
	// ConfirmRequests asks on stdin before every remote call
	ConfirmRequests bool `yaml:"confirm_requests" toml:"confirm_requests"`
	// RetryNotice prints a line to stderr whenever a call is retried
	RetryNotice bool `yaml:"retry_notice" toml:"retry_notice"`
}

// ProviderSettings is one entry under providers:. Values support ${VAR}.
type ProviderSettings struct {
	APIKey            string            `yaml:"api_key" toml:"api_key"`
	Model             string            `yaml:"model" toml:"model"`
	BaseURL           string            `yaml:"base_url" toml:"base_url"`
	Temperature       *float64          `yaml:"temperature" toml:"temperature"`
	MaxTokens         int               `yaml:"max_tokens" toml:"max_tokens"`
	Headers           map[string]string `yaml:"headers" toml:"headers"`
	Referer           string            `yaml:"referer" toml:"referer"`
	Title             string            `yaml:"title" toml:"title"`
	RequestsPerSecond float64           `yaml:"requests_per_second" toml:"requests_per_second"`
	MaxRetries        *int              `yaml:"max_retries" toml:"max_retries"`
}

// Load reads and parses a YAML or TOML config file, chosen by extension
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with fallback to default locations
// Checks: ./chatanvil.{yaml,toml}, ./configs/, ~/.config/chatanvil/, /etc/chatanvil/
func LoadWithDefaults() (*Config, error) {
	dirs := []string{".", "./configs"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "chatanvil"))
	}
	dirs = append(dirs, "/etc/chatanvil")

	for _, dir := range dirs {
		for _, name := range []string{"chatanvil.yaml", "chatanvil.yml", "chatanvil.toml"} {
			loc := filepath.Join(dir, name)
			if _, err := os.Stat(loc); err == nil {
				return Load(loc)
			}
		}
	}

	// No config found - return empty config (not an error)
	return &Config{}, nil
}

func (c *Config) expand() {
	c.LogDir = ExpandEnv(c.LogDir)
	for name, p := range c.Providers {
		p.APIKey = ExpandEnv(p.APIKey)
		p.BaseURL = ExpandEnv(p.BaseURL)
		p.Headers = ExpandEnvMap(p.Headers)
		c.Providers[name] = p
	}
}

// Validate checks config correctness
func (c *Config) Validate() error {
	if c.MaxChatHistory < 0 {
		return fmt.Errorf("max_chat_history must not be negative")
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	for field, v := range map[string]string{"retry.base_delay": c.Retry.BaseDelay, "retry.max_delay": c.Retry.MaxDelay} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	for name, p := range c.Providers {
		if name == "" {
			return fmt.Errorf("provider name cannot be empty")
		}
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			return fmt.Errorf("provider %s: temperature %.2f out of range [0, 2]", name, *p.Temperature)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("provider %s: max_tokens must not be negative", name)
		}
		if p.RequestsPerSecond < 0 {
			return fmt.Errorf("provider %s: requests_per_second must not be negative", name)
		}
	}

	return nil
}

// provider returns the settings for name, accepting aliases.
func (c *Config) provider(name string) ProviderSettings {
	if c == nil {
		return ProviderSettings{}
	}
	if p, ok := c.Providers[name]; ok {
		return p
	}
	for key, p := range c.Providers {
		if CanonicalName(key) == name {
			return p
		}
	}
	return ProviderSettings{}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s must not be negative", s)
	}
	return d, nil
}
