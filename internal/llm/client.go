package llm

import "context"

// Client is the vendor transport: one remote call per Chat.
type Client interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Ping performs the cheapest call that proves the credential (or, for
	// local servers, the endpoint) works.
	Ping(ctx context.Context) error

	Provider() string
	Model() string
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	Reasoning   bool
	Headers     map[string]string
	Extra       map[string]any
}

type ChatResponse struct {
	Message    Message
	Reasoning  string
	StopReason StopReason
	Usage      Usage
}

// Completion is the result handed back to callers. Reasoning is set only
// when reasoning mode was requested and the vendor returned a trace.
type Completion struct {
	Content   string
	Reasoning string
	// Structured is true when the caller asked for the (content, reasoning)
	// pair rather than plain text.
	Structured bool
}

// SplitSystem separates system messages from the conversation turns.
// Multiple system messages are joined with a blank line.
func SplitSystem(msgs []Message) (string, []Message) {
	var system string
	turns := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
