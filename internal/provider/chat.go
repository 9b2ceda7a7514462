package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chatanvil/internal/config"
	"chatanvil/internal/hook"
	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
	"chatanvil/internal/retry"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// validateTimeout bounds ValidateAPIKey.
const validateTimeout = 15 * time.Second

// Chat implements Provider for any llm.Client.
type Chat struct {
	cfg     *config.ProviderConfig
	factory Factory
	id      string

	client      llm.Client
	httpClient  *http.Client
	initialized bool
	retrier     *retry.Retrier
	retryOpts   []retry.Option
	limiter     *rate.Limiter

	log        *logger.Logger
	transcript *logger.Transcript
	hooks      *hook.Manager

	systemPrompt string
	history      *llm.History

	mu      sync.Mutex
	calls   int
	started time.Time
}

func newChat(cfg *config.ProviderConfig, factory Factory, opts ...Option) *Chat {
	c := &Chat{
		cfg:     cfg,
		factory: factory,
		id:      uuid.NewString(),
		log:     logger.Discard(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.history = llm.NewHistory(cfg.MaxChatHistory, c.systemPrompt)
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	retryOpts := append([]retry.Option{
		retry.WithLogger(c.log, cfg.Name),
		retry.OnRetry(c.notifyRetry),
	}, c.retryOpts...)
	c.retrier = retry.New(retry.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Jitter:     cfg.Jitter,
	}, retryOpts...)
	return c
}

func (c *Chat) Name() string {
	return c.cfg.Name
}

func (c *Chat) Model() string {
	return c.cfg.Model
}

func (c *Chat) SessionID() string {
	return c.id
}

func (c *Chat) Initialize(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if c.client == nil {
		if config.RequiresAPIKey(c.cfg.Name) && c.cfg.APIKey == "" {
			return &llm.ConfigurationError{
				Provider: c.cfg.Name,
				Reason:   fmt.Sprintf("API key is required; set %s_API_KEY or pass one explicitly", config.EnvPrefix(c.cfg.Name)),
			}
		}

		client, err := c.factory(c.cfg, c.httpClient)
		if err != nil {
			return err
		}
		c.client = client
	}
	c.initialized = true

	c.log.SessionStart(c.cfg.Name, c.cfg.Model, c.id)
	c.transcript.SessionID(c.id)
	if err := c.checkHooks(ctx, hook.NewHookData(hook.OnSessionStart, c.cfg.Name, c.cfg.Model)); err != nil {
		c.log.Warn("[%s] session_start hook: %v", c.cfg.Name, err)
	}
	return nil
}

func (c *Chat) GetResponse(ctx context.Context, message string, opts CallOptions) (string, error) {
	system := opts.SystemPrompt
	if system == "" {
		system = c.history.SystemPrompt()
	}

	msgs := make([]llm.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, llm.SystemMessage(system))
	}
	msgs = append(msgs, llm.UserMessage(message))

	resp, err := c.call(ctx, msgs, opts)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (c *Chat) GetChatCompletion(ctx context.Context, msgs []llm.Message, opts CallOptions) (llm.Completion, error) {
	resp, err := c.call(ctx, msgs, opts)
	if err != nil {
		return llm.Completion{}, err
	}
	return completion(resp, opts), nil
}

func (c *Chat) Send(ctx context.Context, in llm.Input, opts CallOptions) (llm.Completion, error) {
	msgs, err := in.Normalize()
	if err != nil {
		return llm.Completion{}, err
	}

	snapshot := c.history.Clone()
	full := c.history.Structure(msgs...)

	resp, err := c.call(ctx, full, opts)
	if err != nil {
		c.history = snapshot
		return llm.Completion{}, err
	}
	c.history.Append(resp.Message)
	return completion(resp, opts), nil
}

func (c *Chat) SetSystemPrompt(prompt string) {
	c.systemPrompt = prompt
	c.history.SetSystemPrompt(prompt)
}

func (c *Chat) SystemPrompt() string {
	return c.history.SystemPrompt()
}

func (c *Chat) ClearHistory() {
	c.history.Clear()
}

func (c *Chat) History() []llm.Message {
	return c.history.Messages()
}

func (c *Chat) ValidateAPIKey(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("[%s] key validation panicked: %v", c.cfg.Name, r)
			ok = false
		}
	}()

	if c.client == nil {
		if err := c.Initialize(ctx); err != nil {
			c.log.Failure(c.cfg.Name, err, "validate_api_key")
			return false
		}
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := c.client.Ping(ctx); err != nil {
		c.log.Failure(c.cfg.Name, err, "validate_api_key")
		return false
	}
	return true
}

func (c *Chat) Close() error {
	c.mu.Lock()
	calls := c.calls
	c.mu.Unlock()

	if err := c.hooks.Check(context.Background(), hook.NewHookData(hook.OnSessionEnd, c.cfg.Name, c.cfg.Model)); err != nil {
		c.log.Warn("[%s] session_end hook: %v", c.cfg.Name, err)
	}
	c.log.SessionEnd(time.Since(c.started), calls)
	return nil
}

// Calls returns the number of remote calls attempted.
func (c *Chat) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// call performs one logical request: validation, hooks, logging and the
// retried remote call.
func (c *Chat) call(ctx context.Context, msgs []llm.Message, opts CallOptions) (*llm.ChatResponse, error) {
	if c.client == nil {
		if err := c.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}

	req := c.buildRequest(msgs, opts)
	system, turns := llm.SplitSystem(msgs)
	lastUser := lastContent(turns)

	before := hook.NewHookData(hook.BeforeRequest, c.cfg.Name, req.Model).Set(hook.KeyMessage, lastUser)
	if err := c.checkHooks(ctx, before); err != nil {
		c.log.Failure(c.cfg.Name, err, "before_request")
		return nil, err
	}

	c.log.Request(c.cfg.Name, req.Model, lastUser, system)
	c.log.Params(c.cfg.Name, map[string]any{"temperature": req.Temperature, "max_tokens": req.MaxTokens, "extra": req.Extra})
	c.transcript.User(lastUser, system, map[string]any{"model": req.Model, "temperature": req.Temperature})

	res := retry.Do(ctx, c.retrier, func(ctx context.Context) (*llm.ChatResponse, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(err)
			}
		}
		c.mu.Lock()
		c.calls++
		c.mu.Unlock()
		return c.client.Chat(ctx, req)
	})
	if res.Err != nil {
		err := &llm.ProviderCallError{Provider: c.cfg.Name, Model: req.Model, Attempts: res.Attempts, Err: res.Err}
		c.log.Failure(c.cfg.Name, err, "request")
		c.transcript.Error(err)
		return nil, err
	}

	resp := res.Value
	c.log.Response(c.cfg.Name, resp.Message.Content)
	c.transcript.Assistant(resp.Message.Content, resp.Reasoning)

	after := hook.NewHookData(hook.AfterResponse, c.cfg.Name, req.Model).
		Set(hook.KeyMessage, lastUser).
		Set(hook.KeyResponse, resp.Message.Content)
	if err := c.checkHooks(ctx, after); err != nil {
		c.log.Warn("[%s] after_response hook: %v", c.cfg.Name, err)
	}
	return resp, nil
}

func (c *Chat) buildRequest(msgs []llm.Message, opts CallOptions) *llm.ChatRequest {
	req := &llm.ChatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Reasoning:   opts.Reasoning,
		Headers:     opts.Headers,
		Extra:       opts.Extra,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

// checkHooks runs the session's own hooks, then any found on ctx.
func (c *Chat) checkHooks(ctx context.Context, data *hook.HookData) error {
	if err := c.hooks.Check(ctx, data); err != nil {
		return err
	}
	if m := hook.FromContext(ctx); m != nil && m != c.hooks {
		return m.Check(ctx, data)
	}
	return nil
}

func (c *Chat) notifyRetry(attempt int, err error, delay time.Duration) {
	data := hook.NewHookData(hook.OnRetry, c.cfg.Name, c.cfg.Model).
		Set(hook.KeyAttempt, attempt).
		Set(hook.KeyError, err.Error()).
		Set(hook.KeyDelay, delay)
	if err := c.hooks.Check(context.Background(), data); err != nil {
		c.log.Warn("[%s] on_retry hook: %v", c.cfg.Name, err)
	}
}

func validateMessages(msgs []llm.Message) error {
	if len(msgs) == 0 {
		return &llm.InvalidMessageError{Reason: "no messages to send"}
	}
	hasTurn := false
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message #%d: %w", i+1, err)
		}
		if m.Role != llm.RoleSystem {
			hasTurn = true
		}
	}
	if !hasTurn {
		return &llm.InvalidMessageError{Reason: "only system messages given"}
	}
	return nil
}

func lastContent(turns []llm.Message) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == llm.RoleUser {
			return turns[i].Content
		}
	}
	if len(turns) > 0 {
		return turns[len(turns)-1].Content
	}
	return ""
}

func completion(resp *llm.ChatResponse, opts CallOptions) llm.Completion {
	if opts.Reasoning {
		return llm.Completion{Content: resp.Message.Content, Reasoning: resp.Reasoning, Structured: true}
	}
	return llm.Completion{Content: resp.Message.Content}
}
