// Package openrouter implements llm.Client for OpenRouter.
//
// OpenRouter speaks the OpenAI chat completions dialect but adds two
// attribution headers (HTTP-Referer, X-Title) and can return a separate
// reasoning trace when include_reasoning is set.
package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"chatanvil/internal/llm"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "microsoft/phi-3-medium-128k-instruct:free"
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Referer    string // sent as HTTP-Referer
	Title      string // sent as X-Title
	Headers    map[string]string
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	referer string
	title   string
	headers map[string]string
	client  *http.Client
}

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
		referer: cfg.Referer,
		title:   cfg.Title,
		headers: cfg.Headers,
		client:  cfg.HTTPClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float32       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	IncludeReasoning bool          `json:"include_reasoning,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Transforms       []string      `json:"transforms,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:            model,
		Messages:         make([]chatMessage, len(req.Messages)),
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		IncludeReasoning: req.Reasoning,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	if v, ok := req.Extra["top_p"].(float64); ok {
		body.TopP = v
	}
	if v, ok := req.Extra["stop"].([]string); ok {
		body.Stop = v
	}
	if v, ok := req.Extra["transforms"].([]string); ok {
		body.Transforms = v
	}

	var result chatResponse
	err := llm.DoJSON(ctx, c.client, "openrouter", http.MethodPost, c.baseURL+"/chat/completions",
		c.requestHeaders(req.Headers), body, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: no choices in response")
	}

	choice := result.Choices[0]
	return &llm.ChatResponse{
		Message:    llm.AssistantMessage(choice.Message.Content),
		Reasoning:  choice.Message.Reasoning,
		StopReason: llm.StopReason(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}, nil
}

// Ping queries the key endpoint, which rejects invalid keys with a 401.
func (c *Client) Ping(ctx context.Context) error {
	return llm.DoJSON(ctx, c.client, "openrouter", http.MethodGet, c.baseURL+"/auth/key",
		c.requestHeaders(nil), nil, nil)
}

func (c *Client) Provider() string {
	return "openrouter"
}

func (c *Client) Model() string {
	return c.model
}

// requestHeaders sets the required headers for OpenRouter API requests.
func (c *Client) requestHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}
	if c.referer != "" {
		headers["HTTP-Referer"] = c.referer
	}
	if c.title != "" {
		headers["X-Title"] = c.title
	}
	for k, v := range c.headers {
		headers[k] = v
	}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}
