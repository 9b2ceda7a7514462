// Package provider puts retry, pacing, logging, hooks and conversation
// history around a vendor llm.Client and exposes them as one Provider.
package provider

import (
	"context"
	"net/http"

	"chatanvil/internal/hook"
	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
	"chatanvil/internal/retry"
)

// Provider is the uniform chat capability every vendor offers.
type Provider interface {
	Name() string
	Model() string
	SessionID() string

	// Initialize builds the vendor client. It fails with a
	// *llm.ConfigurationError when a required credential is missing.
	Initialize(ctx context.Context) error

	// GetResponse sends the system prompt (from opts or the stored one)
	// and a single user message. History is not touched.
	GetResponse(ctx context.Context, message string, opts CallOptions) (string, error)

	// GetChatCompletion sends msgs as given.
	GetChatCompletion(ctx context.Context, msgs []llm.Message, opts CallOptions) (llm.Completion, error)

	// Send appends the input to the conversation history, sends the whole
	// history and records the reply.
	Send(ctx context.Context, in llm.Input, opts CallOptions) (llm.Completion, error)

	SetSystemPrompt(prompt string)
	SystemPrompt() string
	ClearHistory()
	History() []llm.Message

	// ValidateAPIKey reports whether the cheapest authenticated call works.
	ValidateAPIKey(ctx context.Context) bool

	Close() error
}

// CallOptions override the configured defaults for one call.
type CallOptions struct {
	Model        string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	Reasoning    bool
	Headers      map[string]string
	Extra        map[string]any
}

// Option customizes a Chat at construction.
type Option func(*Chat)

func WithLogger(l *logger.Logger) Option {
	return func(c *Chat) { c.log = l }
}

// WithTranscript records every exchange. The caller owns its lifecycle.
func WithTranscript(t *logger.Transcript) Option {
	return func(c *Chat) { c.transcript = t }
}

func WithHooks(m *hook.Manager) Option {
	return func(c *Chat) { c.hooks = m }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Chat) { c.httpClient = hc }
}

// WithClient skips the factory and uses client directly.
func WithClient(client llm.Client) Option {
	return func(c *Chat) { c.client = client }
}

// WithRetryOptions passes options such as retry.WithSleeper to the retrier.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Chat) { c.retryOpts = append(c.retryOpts, opts...) }
}

func WithSystemPrompt(prompt string) Option {
	return func(c *Chat) { c.systemPrompt = prompt }
}
