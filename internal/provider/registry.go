package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"chatanvil/internal/config"
	"chatanvil/internal/llm"
	"chatanvil/internal/llm/anthropic"
	"chatanvil/internal/llm/ollama"
	"chatanvil/internal/llm/openai"
	"chatanvil/internal/llm/openrouter"
)

// Factory builds the vendor transport for a resolved configuration.
// httpClient may be nil.
type Factory func(cfg *config.ProviderConfig, httpClient *http.Client) (llm.Client, error)

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns a registry with every built-in vendor.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		"openai":     newOpenAI,
		"groq":       newGroq,
		"claude":     newClaude,
		"ollama":     newOllama,
		"openrouter": newOpenRouter,
	}}
}

// Register adds a vendor. Names cannot be replaced.
func (r *Registry) Register(name string, f Factory) error {
	name = config.CanonicalName(name)
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("provider %s: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered provider keys in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) factory(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[config.CanonicalName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &llm.UnsupportedProviderError{Name: name, Supported: r.Names()}
	}
	return f, nil
}

// New builds and initializes the provider for cfg.Name.
func (r *Registry) New(ctx context.Context, cfg *config.ProviderConfig, opts ...Option) (*Chat, error) {
	if cfg == nil {
		return nil, &llm.ConfigurationError{Provider: "provider", Reason: "nil configuration"}
	}
	f, err := r.factory(cfg.Name)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := newChat(cfg, f, opts...)
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

var defaultRegistry = NewRegistry()

// Register adds a vendor to the process-wide registry.
func Register(name string, f Factory) error {
	return defaultRegistry.Register(name, f)
}

// New builds a provider from the process-wide registry.
func New(ctx context.Context, cfg *config.ProviderConfig, opts ...Option) (*Chat, error) {
	return defaultRegistry.New(ctx, cfg, opts...)
}

func Supported() []string {
	return defaultRegistry.Names()
}

func newOpenAI(cfg *config.ProviderConfig, hc *http.Client) (llm.Client, error) {
	return openai.NewClient(openai.Config{
		Provider:   "openai",
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Headers:    cfg.Headers,
		HTTPClient: hc,
	}), nil
}

func newGroq(cfg *config.ProviderConfig, hc *http.Client) (llm.Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openai.GroqBaseURL
	}
	return openai.NewClient(openai.Config{
		Provider:   "groq",
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    baseURL,
		Headers:    cfg.Headers,
		HTTPClient: hc,
	}), nil
}

func newClaude(cfg *config.ProviderConfig, hc *http.Client) (llm.Client, error) {
	return anthropic.New(anthropic.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Headers:    cfg.Headers,
		HTTPClient: hc,
	}), nil
}

func newOllama(cfg *config.ProviderConfig, hc *http.Client) (llm.Client, error) {
	return ollama.New(ollama.Config{
		Host:       cfg.BaseURL,
		Model:      cfg.Model,
		Headers:    cfg.Headers,
		HTTPClient: hc,
	}), nil
}

func newOpenRouter(cfg *config.ProviderConfig, hc *http.Client) (llm.Client, error) {
	return openrouter.New(openrouter.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Referer:    cfg.Referer,
		Title:      cfg.Title,
		Headers:    cfg.Headers,
		HTTPClient: hc,
	}), nil
}
