package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"chatanvil/internal/hook"
	"chatanvil/internal/logger"
)

// RequestConfirmHandler asks the user before every remote call.
type RequestConfirmHandler struct {
	reader *bufio.Reader
	writer io.Writer
}

func NewRequestConfirmHandler() *RequestConfirmHandler {
	return NewRequestConfirmHandlerWithIO(os.Stdin, os.Stderr)
}

// NewRequestConfirmHandlerWithIO creates a handler with custom IO (for testing)
func NewRequestConfirmHandlerWithIO(reader io.Reader, writer io.Writer) *RequestConfirmHandler {
	return &RequestConfirmHandler{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

func (h *RequestConfirmHandler) Name() string {
	return "request_confirm"
}

func (h *RequestConfirmHandler) Points() []hook.HookPoint {
	return []hook.HookPoint{hook.BeforeRequest}
}

func (h *RequestConfirmHandler) Priority() int {
	return 100 // High priority - runs first
}

func (h *RequestConfirmHandler) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	fmt.Fprintf(h.writer, "\n\033[33m⚠️  Send request to %s (%s)?\033[0m\n", data.Provider, data.Model)
	if msg := data.GetString(hook.KeyMessage); msg != "" {
		fmt.Fprintf(h.writer, "    \033[1m%s\033[0m\n", logger.Truncate(msg, 120))
	}
	fmt.Fprintf(h.writer, "\nAllow? [y/N]: ")

	line, err := h.reader.ReadString('\n')
	if err != nil && line == "" {
		return hook.DenyFeedback("No input received"), nil
	}

	switch strings.TrimSpace(strings.ToLower(line)) {
	case "y", "yes":
		fmt.Fprintf(h.writer, "\033[32m✓ Allowed\033[0m\n\n")
		return hook.AllowFeedback(), nil
	default:
		fmt.Fprintf(h.writer, "\033[31m✗ Denied\033[0m\n\n")
		return hook.DenyFeedback("User denied request"), nil
	}
}

// RetryNoticeHandler prints a short line whenever a call is retried.
type RetryNoticeHandler struct {
	writer io.Writer
}

func NewRetryNoticeHandler(w io.Writer) *RetryNoticeHandler {
	if w == nil {
		w = os.Stderr
	}
	return &RetryNoticeHandler{writer: w}
}

func (h *RetryNoticeHandler) Name() string {
	return "retry_notice"
}

func (h *RetryNoticeHandler) Points() []hook.HookPoint {
	return []hook.HookPoint{hook.OnRetry}
}

func (h *RetryNoticeHandler) Priority() int {
	return 0
}

func (h *RetryNoticeHandler) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	fmt.Fprintf(h.writer, "\033[90m↻ %s: attempt %v failed (%v), retrying in %v\033[0m\n",
		data.Provider, data.Get(hook.KeyAttempt), data.Get(hook.KeyError), data.Get(hook.KeyDelay))
	return hook.AllowFeedback(), nil
}
