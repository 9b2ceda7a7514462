package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chatanvil/internal/llm"
)

// vendor holds the built-in defaults of a known provider.
type vendor struct {
	envPrefix   string
	model       string
	temperature float32
	maxTokens   int
	needsKey    bool
}

var vendors = map[string]vendor{
	"openai":     {envPrefix: "OPENAI", model: "gpt-4o-mini", temperature: 0.7, needsKey: true},
	"claude":     {envPrefix: "ANTHROPIC", model: "claude-3-sonnet-20240229", temperature: 0.7, maxTokens: 4000, needsKey: true},
	"groq":       {envPrefix: "GROQ", model: "mixtral-8x7b-32768", temperature: 0.5, maxTokens: 400, needsKey: true},
	"ollama":     {envPrefix: "OLLAMA", model: "llama3.1", temperature: 0.7},
	"openrouter": {envPrefix: "OPENROUTER", model: "microsoft/phi-3-medium-128k-instruct:free", temperature: 0.5, needsKey: true},
}

// CanonicalName lowercases a provider key and maps aliases.
func CanonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "anthropic" {
		return "claude"
	}
	return name
}

// EnvPrefix returns the environment prefix for a provider, e.g. ANTHROPIC
// for claude. Unknown providers use their upper-cased name.
func EnvPrefix(name string) string {
	name = CanonicalName(name)
	if v, ok := vendors[name]; ok {
		return v.envPrefix
	}
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// DefaultModel returns the built-in model for a known provider.
func DefaultModel(name string) string {
	return vendors[CanonicalName(name)].model
}

// RequiresAPIKey reports whether the provider needs a credential.
func RequiresAPIKey(name string) bool {
	v, ok := vendors[CanonicalName(name)]
	return !ok || v.needsKey
}

// ProviderConfig is the resolved, immutable configuration handed to a
// provider and its session.
type ProviderConfig struct {
	Name        string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	BaseURL     string
	Headers     map[string]string

	// OpenRouter attribution
	Referer string
	Title   string

	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            bool
	RequestsPerSecond float64

	MaxChatHistory int
	LogDir         string
	LogLevel       string
}

// Validate checks ranges of the resolved values.
func (c *ProviderConfig) Validate() error {
	if c.Name == "" {
		return &llm.ConfigurationError{Provider: "config", Reason: "provider name is empty"}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &llm.ConfigurationError{Provider: c.Name, Reason: fmt.Sprintf("temperature %.2f out of range [0, 2]", c.Temperature)}
	}
	if c.MaxTokens < 0 {
		return &llm.ConfigurationError{Provider: c.Name, Reason: "max tokens must not be negative"}
	}
	if c.MaxRetries < 0 {
		return &llm.ConfigurationError{Provider: c.Name, Reason: "max retries must not be negative"}
	}
	if c.MaxChatHistory <= 0 {
		return &llm.ConfigurationError{Provider: c.Name, Reason: "max chat history must be positive"}
	}
	if c.RequestsPerSecond < 0 {
		return &llm.ConfigurationError{Provider: c.Name, Reason: "requests per second must not be negative"}
	}
	return nil
}

// Overrides are explicit caller values; zero fields are ignored.
type Overrides struct {
	APIKey         string
	Model          string
	Temperature    *float32
	MaxTokens      int
	BaseURL        string
	Headers        map[string]string
	MaxRetries     *int
	MaxChatHistory int
	LogDir         string
	LogLevel       string
}

// Resolve builds the configuration for provider name. Precedence is
// overrides, then environment, then the config file, then built-in
// defaults. file may be nil.
func Resolve(name string, file *Config, ov Overrides) (*ProviderConfig, error) {
	name = CanonicalName(name)
	if name == "" && file != nil {
		name = CanonicalName(file.Provider)
	}
	if name == "" {
		return nil, &llm.ConfigurationError{Provider: "config", Reason: "no provider selected"}
	}

	def := vendors[name]
	prefix := EnvPrefix(name)
	fp := file.provider(name)

	cfg := &ProviderConfig{
		Name:           name,
		Model:          def.model,
		Temperature:    def.temperature,
		MaxTokens:      def.maxTokens,
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       60 * time.Second,
		MaxChatHistory: llm.DefaultMaxChatHistory,
		LogLevel:       "INFO",
	}
	if name == "ollama" {
		cfg.BaseURL = "http://localhost:11434"
	}

	// config file
	if file != nil {
		if file.MaxChatHistory > 0 {
			cfg.MaxChatHistory = file.MaxChatHistory
		}
		if file.LogDir != "" {
			cfg.LogDir = file.LogDir
		}
		if file.LogLevel != "" {
			cfg.LogLevel = file.LogLevel
		}
		if file.Retry.MaxRetries != nil {
			cfg.MaxRetries = *file.Retry.MaxRetries
		}
		if d, err := parseDuration(file.Retry.BaseDelay); err == nil && d > 0 {
			cfg.BaseDelay = d
		}
		if d, err := parseDuration(file.Retry.MaxDelay); err == nil && d > 0 {
			cfg.MaxDelay = d
		}
		cfg.Jitter = file.Retry.Jitter
	}
	setString(&cfg.APIKey, fp.APIKey)
	setString(&cfg.Model, fp.Model)
	setString(&cfg.BaseURL, fp.BaseURL)
	setString(&cfg.Referer, fp.Referer)
	setString(&cfg.Title, fp.Title)
	if fp.Temperature != nil {
		cfg.Temperature = float32(*fp.Temperature)
	}
	if fp.MaxTokens > 0 {
		cfg.MaxTokens = fp.MaxTokens
	}
	if fp.MaxRetries != nil {
		cfg.MaxRetries = *fp.MaxRetries
	}
	cfg.RequestsPerSecond = fp.RequestsPerSecond
	cfg.Headers = copyHeaders(fp.Headers)

	// environment
	setString(&cfg.APIKey, os.Getenv(prefix+"_API_KEY"))
	setString(&cfg.Model, os.Getenv(prefix+"_DEFAULT_MODEL"))
	setString(&cfg.BaseURL, os.Getenv(prefix+"_BASE_URL"))
	if name == "ollama" {
		setString(&cfg.BaseURL, os.Getenv("OLLAMA_HOST"))
	}
	if name == "openrouter" {
		setString(&cfg.Referer, os.Getenv("OPENROUTER_REFERER"))
		setString(&cfg.Title, os.Getenv("OPENROUTER_TITLE"))
	}
	if v := os.Getenv(prefix + "_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &llm.ConfigurationError{Provider: name, Reason: fmt.Sprintf("%s_MAX_TOKENS: %v", prefix, err)}
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, &llm.ConfigurationError{Provider: name, Reason: fmt.Sprintf("TEMPERATURE: %v", err)}
		}
		cfg.Temperature = float32(f)
	}
	if v := os.Getenv("MAX_CHAT_HISTORY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &llm.ConfigurationError{Provider: name, Reason: fmt.Sprintf("MAX_CHAT_HISTORY: %v", err)}
		}
		cfg.MaxChatHistory = n
	}
	setString(&cfg.LogDir, os.Getenv("LOG_DIR"))
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))

	// explicit overrides
	setString(&cfg.APIKey, ov.APIKey)
	setString(&cfg.Model, ov.Model)
	setString(&cfg.BaseURL, ov.BaseURL)
	setString(&cfg.LogDir, ov.LogDir)
	setString(&cfg.LogLevel, ov.LogLevel)
	if ov.Temperature != nil {
		cfg.Temperature = *ov.Temperature
	}
	if ov.MaxTokens > 0 {
		cfg.MaxTokens = ov.MaxTokens
	}
	if ov.MaxRetries != nil {
		cfg.MaxRetries = *ov.MaxRetries
	}
	if ov.MaxChatHistory > 0 {
		cfg.MaxChatHistory = ov.MaxChatHistory
	}
	for k, v := range ov.Headers {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
