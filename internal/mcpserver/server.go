// Package mcpserver exposes a chat session as MCP tools so other agents
// can use chatanvil over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatanvil/internal/chat"
	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
	"chatanvil/internal/parser"
	"chatanvil/internal/provider"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type AskInput struct {
	Message      string `json:"message" jsonschema:"the user message to send"`
	SystemPrompt string `json:"system_prompt,omitempty" jsonschema:"overrides the session system prompt for this call"`
	Reasoning    bool   `json:"reasoning,omitempty" jsonschema:"ask the model for a separate reasoning trace"`
	Conversation bool   `json:"conversation,omitempty" jsonschema:"append the exchange to the session history"`
}

type AskOutput struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

type ExtractInput struct {
	Text   string `json:"text" jsonschema:"the response text to extract code from"`
	Parser string `json:"parser,omitempty" jsonschema:"parser to use (markdown, json, xml); defaults to the session parser"`
}

type ExtractOutput struct {
	Blocks []parser.CodeBlock `json:"blocks"`
}

// Server serializes tool calls onto one chat session.
type Server struct {
	mu      sync.Mutex
	session *chat.Session
	log     *logger.Logger
	server  *mcp.Server
}

func New(session *chat.Session, log *logger.Logger, version string) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		session: session,
		log:     log,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "chatanvil",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: fmt.Sprintf("Send a message to %s (%s) and return the parsed reply.", session.Provider().Name(), session.Provider().Model()),
	}, s.ask)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_code",
		Description: "Extract code blocks from a model response using the markdown, json or xml parser.",
	}, s.extractCode)

	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until ctx is canceled or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("[mcp] serving %s over stdio", s.session.Provider().Name())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prov := s.session.Provider()
	out := AskOutput{Provider: prov.Name(), Model: prov.Model()}
	if in.Message == "" {
		return errorResult(errors.New("message is required")), out, nil
	}

	opts := provider.CallOptions{SystemPrompt: in.SystemPrompt, Reasoning: in.Reasoning}

	var (
		c   llm.Completion
		err error
	)
	if in.Conversation {
		c, err = s.session.Send(ctx, llm.Text(in.Message), opts)
	} else {
		system := in.SystemPrompt
		if system == "" {
			system = prov.SystemPrompt()
		}
		msgs := make([]llm.Message, 0, 2)
		if system != "" {
			msgs = append(msgs, llm.SystemMessage(system))
		}
		msgs = append(msgs, llm.UserMessage(in.Message))
		c, err = s.session.GetChatCompletion(ctx, msgs, opts)
	}
	if err != nil {
		s.log.Failure("mcp", err, "ask")
		return errorResult(err), out, nil
	}

	out.Content = c.Content
	out.Reasoning = c.Reasoning
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: c.Content}},
	}, out, nil
}

func (s *Server) extractCode(ctx context.Context, req *mcp.CallToolRequest, in ExtractInput) (*mcp.CallToolResult, ExtractOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ExtractOutput{Blocks: []parser.CodeBlock{}}

	var (
		blocks []parser.CodeBlock
		err    error
	)
	if in.Parser == "" {
		blocks, err = s.session.ExtractCode(in.Text)
	} else {
		var p parser.Parser
		if p, err = parser.New(in.Parser); err == nil {
			blocks, err = p.ExtractCode(in.Text)
		}
	}
	if err != nil {
		return errorResult(err), out, nil
	}
	if blocks != nil {
		out.Blocks = blocks
	}

	content := make([]mcp.Content, 0, len(blocks))
	for _, b := range blocks {
		content = append(content, &mcp.TextContent{Text: b.Content})
	}
	if len(content) == 0 {
		content = append(content, &mcp.TextContent{Text: "no code blocks found"})
	}
	return &mcp.CallToolResult{Content: content}, out, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
