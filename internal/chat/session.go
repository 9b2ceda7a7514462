// Package chat is the caller-facing façade: one Session owns a provider,
// the active response parser and the transcript of a conversation.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"chatanvil/internal/config"
	"chatanvil/internal/hook"
	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
	"chatanvil/internal/parser"
	"chatanvil/internal/provider"
)

// Options configure a new Session. Only Provider is required, and it may
// be left empty when the config file names one.
type Options struct {
	Provider     string
	Parser       string
	SystemPrompt string

	// File is the loaded config file, if any.
	File      *config.Config
	Overrides config.Overrides

	Logger     *logger.Logger
	Hooks      *hook.Manager
	HTTPClient *http.Client

	// ProviderOptions are appended after the ones the session builds.
	ProviderOptions []provider.Option
}

// Session is not safe for concurrent use; run one per goroutine.
type Session struct {
	provider   provider.Provider
	parser     parser.Parser
	log        *logger.Logger
	transcript *logger.Transcript
}

// New resolves configuration, opens the transcript and builds the
// provider and parser. Selection errors fail here.
func New(ctx context.Context, opts Options) (*Session, error) {
	cfg, err := config.Resolve(opts.Provider, opts.File, opts.Overrides)
	if err != nil {
		return nil, err
	}

	key := opts.Parser
	if key == "" && opts.File != nil {
		key = opts.File.Parser
	}
	if key == "" {
		key = parser.DefaultKey
	}
	p, err := parser.New(key)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger(os.Stderr, logger.ParseLevel(cfg.LogLevel))
	}

	transcript, err := logger.NewTranscript(cfg.LogDir, cfg.Name, cfg.Model)
	if err != nil {
		// transcripts are best effort
		log.Warn("[%s] transcript disabled: %v", cfg.Name, err)
		transcript = nil
	}

	popts := []provider.Option{
		provider.WithLogger(log),
		provider.WithTranscript(transcript),
		provider.WithHooks(opts.Hooks),
		provider.WithSystemPrompt(opts.SystemPrompt),
	}
	if opts.HTTPClient != nil {
		popts = append(popts, provider.WithHTTPClient(opts.HTTPClient))
	}
	popts = append(popts, opts.ProviderOptions...)

	prov, err := provider.New(ctx, cfg, popts...)
	if err != nil {
		_ = transcript.Close()
		return nil, err
	}

	return &Session{provider: prov, parser: p, log: log, transcript: transcript}, nil
}

// NewWithProvider wraps an already built provider.
func NewWithProvider(prov provider.Provider, parserKey string) (*Session, error) {
	if parserKey == "" {
		parserKey = parser.DefaultKey
	}
	p, err := parser.New(parserKey)
	if err != nil {
		return nil, err
	}
	return &Session{provider: prov, parser: p, log: logger.Discard()}, nil
}

func (s *Session) ID() string {
	return s.provider.SessionID()
}

func (s *Session) Provider() provider.Provider {
	return s.provider
}

// GetResponse sends one message and runs the reply through the parser.
func (s *Session) GetResponse(ctx context.Context, message string, opts provider.CallOptions) (string, error) {
	raw, err := s.provider.GetResponse(ctx, message, opts)
	if err != nil {
		return "", err
	}
	return s.parser.ParseResponse(raw)
}

// GetChatCompletion sends msgs as given. Structured (reasoning) results
// are returned without parsing.
func (s *Session) GetChatCompletion(ctx context.Context, msgs []llm.Message, opts provider.CallOptions) (llm.Completion, error) {
	c, err := s.provider.GetChatCompletion(ctx, msgs, opts)
	if err != nil {
		return llm.Completion{}, err
	}
	return s.parseCompletion(c)
}

// Send continues the conversation kept in history.
func (s *Session) Send(ctx context.Context, in llm.Input, opts provider.CallOptions) (llm.Completion, error) {
	c, err := s.provider.Send(ctx, in, opts)
	if err != nil {
		return llm.Completion{}, err
	}
	return s.parseCompletion(c)
}

func (s *Session) parseCompletion(c llm.Completion) (llm.Completion, error) {
	if c.Structured {
		return c, nil
	}
	parsed, err := s.parser.ParseResponse(c.Content)
	if err != nil {
		return llm.Completion{}, err
	}
	c.Content = parsed
	return c, nil
}

func (s *Session) SetSystemPrompt(prompt string) {
	s.provider.SetSystemPrompt(prompt)
}

func (s *Session) ClearHistory() {
	s.provider.ClearHistory()
}

// History returns a copy of the conversation.
func (s *Session) History() []llm.Message {
	return s.provider.History()
}

func (s *Session) ValidateAPIKey(ctx context.Context) bool {
	return s.provider.ValidateAPIKey(ctx)
}

// SetParser swaps the active parser. On error the current one stays.
func (s *Session) SetParser(key string) error {
	p, err := parser.New(key)
	if err != nil {
		return err
	}
	s.parser = p
	s.log.Debug("[%s] parser set to %s", s.provider.Name(), p.Name())
	return nil
}

func (s *Session) CurrentParser() string {
	return s.parser.Name()
}

// ExtractCode delegates to the active parser. The default parser does not
// extract code and returns an error wrapping parser.ErrUnsupportedOperation.
func (s *Session) ExtractCode(text string) ([]parser.CodeBlock, error) {
	blocks, err := s.parser.ExtractCode(text)
	if err != nil {
		return nil, fmt.Errorf("extract code with %s parser: %w", s.parser.Name(), err)
	}
	return blocks, nil
}

// FormatMessage shapes message for the active parser's format, when it
// has one.
func (s *Session) FormatMessage(message string) string {
	if f, ok := s.parser.(parser.Formatter); ok {
		return f.FormatMessage(message)
	}
	return message
}

// Close ends the provider session and closes the transcript.
func (s *Session) Close() error {
	err := s.provider.Close()
	if terr := s.transcript.Close(); err == nil {
		err = terr
	}
	return err
}
