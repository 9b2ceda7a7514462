// Package anthropic implements llm.Client using the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"chatanvil/internal/llm"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-3-sonnet-20240229"
	DefaultMaxTokens = 4000
	apiVersion       = "2023-06-01"
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

// Client implements llm.Client using the Anthropic Messages API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	headers map[string]string
	client  *http.Client
}

// New creates a client for the Anthropic API.
// Model defaults to DefaultModel if empty.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: llm.DefaultTimeout}
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		client:  cfg.HTTPClient,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
	TopP        *float64  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
	Stop        []string  `json:"stop_sequences,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends the conversation. System messages are lifted into the
// top-level system field, which is where the Messages API expects them.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	system, turns := llm.SplitSystem(req.Messages)
	body := messagesRequest{
		Model:       model,
		System:      system,
		Messages:    make([]message, len(turns)),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	for i, m := range turns {
		body.Messages[i] = message{Role: string(m.Role), Content: m.Content}
	}
	applyExtra(&body, req.Extra)

	var result messagesResponse
	err := llm.DoJSON(ctx, c.client, "claude", http.MethodPost, c.baseURL+"/messages",
		c.requestHeaders(req.Headers), body, &result)
	if err != nil {
		return nil, err
	}

	resp := &llm.ChatResponse{
		Message:    llm.Message{Role: llm.RoleAssistant},
		StopReason: convertStopReason(result.StopReason),
		Usage: llm.Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	}

	found := false
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			resp.Message.Content += block.Text
			found = true
		case "thinking":
			resp.Reasoning += block.Thinking
		}
	}
	if !found {
		return nil, fmt.Errorf("claude: no text content in response")
	}
	return resp, nil
}

// Ping lists models; it fails with a 401 StatusError on a bad key.
func (c *Client) Ping(ctx context.Context) error {
	return llm.DoJSON(ctx, c.client, "claude", http.MethodGet, c.baseURL+"/models?limit=1",
		c.requestHeaders(nil), nil, nil)
}

func (c *Client) Provider() string {
	return "claude"
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) requestHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": apiVersion,
	}
	for k, v := range c.headers {
		headers[k] = v
	}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func convertStopReason(reason string) llm.StopReason {
	switch reason {
	case "max_tokens":
		return llm.StopReasonLength
	case "":
		return ""
	default:
		return llm.StopReasonStop
	}
}

func applyExtra(body *messagesRequest, extra map[string]any) {
	if v, ok := extra["top_p"].(float64); ok {
		body.TopP = &v
	}
	if v, ok := extra["top_k"].(int); ok {
		body.TopK = &v
	}
	switch v := extra["stop"].(type) {
	case string:
		body.Stop = []string{v}
	case []string:
		body.Stop = v
	}
}
