// Package ollama implements llm.Client for a local Ollama server.
// Ollama needs no credential; Ping is a liveness check on /api/tags.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"chatanvil/internal/llm"
)

const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.1"
)

type Config struct {
	Host       string
	Model      string
	Headers    map[string]string
	HTTPClient *http.Client
}

type Client struct {
	host    string
	model   string
	headers map[string]string
	client  *http.Client
}

func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: llm.DefaultTimeout}
	}
	return &Client{
		host:    strings.TrimRight(cfg.Host, "/"),
		model:   cfg.Model,
		headers: cfg.Headers,
		client:  cfg.HTTPClient,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// options holds the model parameters sent with /api/chat.
type options struct {
	Temperature float32  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
	Options  options   `json:"options"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:    model,
		Messages: make([]message, len(req.Messages)),
		Stream:   false,
		Options: options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	for i, m := range req.Messages {
		body.Messages[i] = message{Role: string(m.Role), Content: m.Content}
	}
	applyExtra(&body, req.Extra)

	var result chatResponse
	err := llm.DoJSON(ctx, c.client, "ollama", http.MethodPost, c.host+"/api/chat",
		mergeHeaders(c.headers, req.Headers), body, &result)
	if err != nil {
		return nil, err
	}
	if !result.Done && result.Message.Content == "" {
		return nil, fmt.Errorf("ollama: empty response")
	}

	stop := llm.StopReasonStop
	if result.DoneReason == "length" {
		stop = llm.StopReasonLength
	}

	return &llm.ChatResponse{
		Message:    llm.AssistantMessage(result.Message.Content),
		Reasoning:  result.Message.Thinking,
		StopReason: stop,
		Usage: llm.Usage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
			TotalTokens:      result.PromptEvalCount + result.EvalCount,
		},
	}, nil
}

// Ping verifies that the server answers /api/tags.
func (c *Client) Ping(ctx context.Context) error {
	return llm.DoJSON(ctx, c.client, "ollama", http.MethodGet, c.host+"/api/tags", c.headers, nil, nil)
}

func (c *Client) Provider() string {
	return "ollama"
}

func (c *Client) Model() string {
	return c.model
}

func applyExtra(body *chatRequest, extra map[string]any) {
	if v, ok := extra["format"].(string); ok {
		body.Format = v
	}
	if v, ok := extra["top_k"].(int); ok {
		body.Options.TopK = v
	}
	if v, ok := extra["top_p"].(float64); ok {
		body.Options.TopP = v
	}
	if v, ok := extra["seed"].(int); ok {
		body.Options.Seed = v
	}
	switch v := extra["stop"].(type) {
	case string:
		body.Options.Stop = []string{v}
	case []string:
		body.Options.Stop = v
	}
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
