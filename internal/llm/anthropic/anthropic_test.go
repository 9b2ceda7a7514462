package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatanvil/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ChatLiftsSystemPrompt(t *testing.T) {
	var got messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [
				{"type": "thinking", "thinking": "hmm"},
				{"type": "text", "text": "Hello!"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	resp, err := client.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			llm.SystemMessage("You are terse."),
			llm.UserMessage("hi"),
		},
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello!", resp.Message.Content)
	assert.Equal(t, "hmm", resp.Reasoning)
	assert.Equal(t, llm.StopReasonStop, resp.StopReason)
	assert.Equal(t, 14, resp.Usage.TotalTokens)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "You are terse.", got.System)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestClient_ChatNoText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "stop_reason": "end_turn"}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := client.Chat(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}

func TestClient_PingUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "bad", BaseURL: server.URL})
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, llm.IsAuthError(err))
}

func TestConvertStopReason(t *testing.T) {
	assert.Equal(t, llm.StopReasonLength, convertStopReason("max_tokens"))
	assert.Equal(t, llm.StopReasonStop, convertStopReason("stop_sequence"))
	assert.Equal(t, llm.StopReason(""), convertStopReason(""))
}
