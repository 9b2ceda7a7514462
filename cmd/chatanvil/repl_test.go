package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"chatanvil/internal/chat"
	"chatanvil/internal/cli"
	"chatanvil/internal/config"
	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
	"chatanvil/internal/provider"
	"chatanvil/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedClient struct {
	replies []string
}

func (c *cannedClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	r := c.replies[0]
	c.replies = c.replies[1:]
	return &llm.ChatResponse{Message: llm.AssistantMessage(r)}, nil
}

func (c *cannedClient) Ping(ctx context.Context) error { return nil }
func (c *cannedClient) Provider() string { return "groq" }
func (c *cannedClient) Model() string { return "test-model" }

func newTestREPL(t *testing.T, input string, replies ...string) (*repl, *bytes.Buffer) {
	t.Helper()
	t.Setenv("LOG_DIR", "")
	zero := 0
	s, err := chat.New(context.Background(), chat.Options{
		Provider:  "groq",
		Overrides: config.Overrides{APIKey: "test", MaxRetries: &zero},
		Logger:    logger.Discard(),
		ProviderOptions: []provider.Option{
			provider.WithClient(&cannedClient{replies: replies}),
			provider.WithRetryOptions(retry.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil })),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var buf bytes.Buffer
	w := cli.NewWriter(&buf)
	w.SetColorMode(false)
	return &repl{
		session: s,
		in:      strings.NewReader(input),
		out:     cli.NewRenderer(w, false),
	}, &buf
}

func TestREPL_Conversation(t *testing.T) {
	r, buf := newTestREPL(t,
		"hello\n/parser markdown\nshow code\n/extract\n/history\n/quit\nnever sent\n",
		"hi there", "here:\n```go\nfmt.Println(1)\n```\n")

	require.NoError(t, r.run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "hi there\n")
	assert.Contains(t, out, "parser: markdown")
	assert.Contains(t, out, "── go (1/1) ──\nfmt.Println(1)\n")
	assert.Contains(t, out, "[user] hello")
	assert.Contains(t, out, "[assistant] hi there")
	assert.NotContains(t, out, "never sent")

	assert.Len(t, r.session.History(), 4)
}

func TestREPL_Commands(t *testing.T) {
	r, buf := newTestREPL(t, "/extract\n/parser yaml\n/system be brief\n/reasoning\n/clear\n/history\n/system\n/history\n/bogus\n")

	require.NoError(t, r.run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "no reply yet")
	assert.Contains(t, out, `unsupported parser type "yaml"`)
	assert.Contains(t, out, "system prompt set")
	assert.Contains(t, out, "reasoning: true")
	assert.Contains(t, out, "history cleared")
	assert.Contains(t, out, "[system] be brief")
	assert.Contains(t, out, "system prompt cleared")
	assert.Contains(t, out, "history is empty")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Equal(t, "default", r.session.CurrentParser())
	assert.True(t, r.reasoning)
}

func TestReadMessage(t *testing.T) {
	msg, err := readMessage(strings.NewReader("ignored"), []string{"what", "is", "go?"})
	require.NoError(t, err)
	assert.Equal(t, "what is go?", msg)

	msg, err = readMessage(strings.NewReader("  from stdin\n"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "from stdin", msg)

	_, err = readMessage(strings.NewReader("   "), nil)
	assert.Error(t, err)
}

func TestPrintProviders(t *testing.T) {
	var buf bytes.Buffer
	printProviders(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, buf.String(), "ANTHROPIC_API_KEY")
	assert.Contains(t, buf.String(), "llama3.1")
	assert.Contains(t, buf.String(), "(none)")
}
