package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatanvil/internal/llm"
)

// clearEnv blanks every variable Resolve reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, prefix := range []string{"OPENAI", "ANTHROPIC", "GROQ", "OLLAMA", "OPENROUTER"} {
		for _, suffix := range []string{"_API_KEY", "_DEFAULT_MODEL", "_BASE_URL", "_MAX_TOKENS"} {
			t.Setenv(prefix+suffix, "")
		}
	}
	for _, name := range []string{"OLLAMA_HOST", "OPENROUTER_REFERER", "OPENROUTER_TITLE", "TEMPERATURE", "MAX_CHAT_HISTORY", "LOG_DIR", "LOG_LEVEL"} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	path := writeFile(t, "chatanvil.yaml", `
provider: openai
parser: markdown
max_chat_history: 6
retry:
  max_retries: 5
  base_delay: 500ms
  max_delay: 10s
  jitter: true
hooks:
  confirm_requests: true
providers:
  openai:
    api_key: ${TEST_OPENAI_KEY}
    model: gpt-4o
    temperature: 0.2
    headers:
      X-Team: research
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "openai" || cfg.Parser != "markdown" {
		t.Errorf("unexpected top-level values %+v", cfg)
	}
	if !cfg.Hooks.ConfirmRequests {
		t.Error("expected confirm_requests to be set")
	}
	p := cfg.Providers["openai"]
	if p.APIKey != "sk-from-env" {
		t.Errorf("expected expanded api key, got %q", p.APIKey)
	}
	if p.Temperature == nil || *p.Temperature != 0.2 {
		t.Errorf("unexpected temperature %v", p.Temperature)
	}
	if p.Headers["X-Team"] != "research" {
		t.Errorf("unexpected headers %v", p.Headers)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "chatanvil.toml", `
provider = "groq"

[retry]
max_retries = 1

[providers.groq]
api_key = "gsk-test"
max_tokens = 128
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "groq" {
		t.Errorf("expected groq, got %q", cfg.Provider)
	}
	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 1 {
		t.Errorf("unexpected retry config %+v", cfg.Retry)
	}
	if cfg.Providers["groq"].MaxTokens != 128 {
		t.Errorf("unexpected provider settings %+v", cfg.Providers["groq"])
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"temperature": "providers:\n  openai:\n    temperature: 3\n",
		"delay":       "retry:\n  base_delay: soon\n",
		"retries":     "retry:\n  max_retries: -1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "c.yaml", content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Resolve("anthropic", nil, Overrides{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Name != "claude" {
		t.Errorf("expected alias to resolve to claude, got %q", cfg.Name)
	}
	if cfg.Model != "claude-3-sonnet-20240229" {
		t.Errorf("unexpected default model %q", cfg.Model)
	}
	if cfg.MaxTokens != 4000 || cfg.MaxRetries != 3 || cfg.MaxChatHistory != llm.DefaultMaxChatHistory {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.BaseDelay != time.Second || cfg.MaxDelay != time.Minute {
		t.Errorf("unexpected delays %v %v", cfg.BaseDelay, cfg.MaxDelay)
	}
}

func TestResolve_Precedence(t *testing.T) {
	clearEnv(t)
	temp := 0.3
	file := &Config{
		LogLevel: "WARN",
		Providers: map[string]ProviderSettings{
			"openai": {APIKey: "file-key", Model: "file-model", Temperature: &temp},
		},
	}

	cfg, err := Resolve("openai", file, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "file-key" || cfg.Model != "file-model" || cfg.Temperature != 0.3 {
		t.Errorf("expected file values, got %+v", cfg)
	}

	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_DEFAULT_MODEL", "env-model")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err = Resolve("openai", file, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "env-key" || cfg.Model != "env-model" || cfg.LogLevel != "DEBUG" {
		t.Errorf("expected env values, got %+v", cfg)
	}

	override := float32(1.1)
	cfg, err = Resolve("openai", file, Overrides{APIKey: "explicit", Model: "gpt-4o", Temperature: &override})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "explicit" || cfg.Model != "gpt-4o" || cfg.Temperature != 1.1 {
		t.Errorf("expected override values, got %+v", cfg)
	}
}

func TestResolve_OllamaHost(t *testing.T) {
	clearEnv(t)
	cfg, err := Resolve("ollama", nil, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected default host %q", cfg.BaseURL)
	}

	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	cfg, _ = Resolve("ollama", nil, Overrides{})
	if cfg.BaseURL != "http://gpu-box:11434" {
		t.Errorf("expected OLLAMA_HOST, got %q", cfg.BaseURL)
	}
}

func TestResolve_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Resolve("", nil, Overrides{})
	var ce *llm.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError for empty name, got %v", err)
	}

	t.Setenv("GROQ_MAX_TOKENS", "lots")
	if _, err := Resolve("groq", nil, Overrides{}); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError for bad max tokens, got %v", err)
	}

	t.Setenv("GROQ_MAX_TOKENS", "")
	bad := float32(2.5)
	if _, err := Resolve("groq", nil, Overrides{Temperature: &bad}); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError for temperature, got %v", err)
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := map[string]string{
		"openai":     "OPENAI",
		"Claude":     "ANTHROPIC",
		"anthropic":  "ANTHROPIC",
		"openrouter": "OPENROUTER",
		"my-vendor":  "MY_VENDOR",
	}
	for name, want := range tests {
		if got := EnvPrefix(name); got != want {
			t.Errorf("EnvPrefix(%q) = %q, want %q", name, got, want)
		}
	}
	if RequiresAPIKey("ollama") {
		t.Error("ollama must not require a key")
	}
	if !RequiresAPIKey("openai") {
		t.Error("openai requires a key")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CHATANVIL_TOKEN", "abc")
	if got := ExpandEnv("Bearer ${CHATANVIL_TOKEN}"); got != "Bearer abc" {
		t.Errorf("unexpected expansion %q", got)
	}
	if got := ExpandEnv("$CHATANVIL_TOKEN/x"); got != "abc/x" {
		t.Errorf("unexpected expansion %q", got)
	}
	if ExpandEnvMap(nil) != nil {
		t.Error("expected nil map")
	}
}

func TestExpandEnv_Default(t *testing.T) {
	t.Setenv("CHATANVIL_UNSET", "")
	if got := ExpandEnv("${CHATANVIL_UNSET:-https://openrouter.ai}"); got != "https://openrouter.ai" {
		t.Errorf("expected default value, got %q", got)
	}
}
