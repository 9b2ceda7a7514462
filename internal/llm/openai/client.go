// Package openai implements llm.Client on top of go-openai. It serves
// every OpenAI-compatible endpoint: OpenAI itself and Groq.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"chatanvil/internal/llm"

	openai "github.com/sashabaranov/go-openai"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	Provider string // "openai", "groq", ...
	APIKey   string
	Model    string
	BaseURL  string
	Headers  map[string]string

	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

type Client struct {
	client   *openai.Client
	provider string
	model    string
}

// NewClient creates a client for an OpenAI-compatible API.
// If BaseURL is empty, it uses the default OpenAI API endpoint.
func NewClient(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	config.HTTPClient = &headerDoer{doer: httpClient, headers: cfg.Headers}

	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	return &Client{
		client:   openai.NewClientWithConfig(config),
		provider: provider,
		model:    cfg.Model,
	}
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	temperature := req.Temperature
	if temperature == 0 {
		// go-openai omits a zero temperature; the API would then use 1.0.
		temperature = math.SmallestNonzeroFloat32
	}

	ocReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}
	applyExtra(&ocReq, req.Extra)

	if len(req.Headers) > 0 {
		ctx = context.WithValue(ctx, callHeadersKey{}, req.Headers)
	}

	resp, err := c.client.CreateChatCompletion(ctx, ocReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", c.provider)
	}

	return convertResponse(resp), nil
}

// Ping lists models, which needs a valid key but costs no tokens.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return c.convertError(err)
	}
	return nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) Model() string {
	return c.model
}

// Helper method: message format conversion
func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		result[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return result
}

// Helper method: response conversion
func convertResponse(resp openai.ChatCompletionResponse) *llm.ChatResponse {
	choice := resp.Choices[0]
	msg := choice.Message

	return &llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: msg.Content,
		},
		Reasoning:  msg.ReasoningContent,
		StopReason: llm.StopReason(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// convertError maps go-openai error types onto llm.StatusError so the
// retry policy can tell permanent failures from transient ones.
func (c *Client) convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &llm.StatusError{Provider: c.provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &llm.StatusError{Provider: c.provider, StatusCode: reqErr.HTTPStatusCode, Body: body}
	}

	return fmt.Errorf("%s: %w", c.provider, err)
}

// applyExtra copies the vendor parameters go-openai knows about.
func applyExtra(req *openai.ChatCompletionRequest, extra map[string]any) {
	for key, value := range extra {
		switch key {
		case "top_p":
			if f, ok := toFloat32(value); ok {
				req.TopP = f
			}
		case "presence_penalty":
			if f, ok := toFloat32(value); ok {
				req.PresencePenalty = f
			}
		case "frequency_penalty":
			if f, ok := toFloat32(value); ok {
				req.FrequencyPenalty = f
			}
		case "stop":
			switch v := value.(type) {
			case string:
				req.Stop = []string{v}
			case []string:
				req.Stop = v
			}
		case "seed":
			if n, ok := value.(int); ok {
				req.Seed = &n
			}
		case "user":
			if s, ok := value.(string); ok {
				req.User = s
			}
		}
	}
}

func toFloat32(v any) (float32, bool) {
	switch n := v.(type) {
	case float32:
		return n, true
	case float64:
		return float32(n), true
	case int:
		return float32(n), true
	}
	return 0, false
}

type callHeadersKey struct{}

// headerDoer adds the configured headers, then any per-call headers
// carried on the request context, to every request go-openai sends.
type headerDoer struct {
	doer    *http.Client
	headers map[string]string
}

func (d *headerDoer) Do(req *http.Request) (*http.Response, error) {
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	if extra, ok := req.Context().Value(callHeadersKey{}).(map[string]string); ok {
		for k, v := range extra {
			req.Header.Set(k, v)
		}
	}
	return d.doer.Do(req)
}
