package hook

import (
	"context"
	"errors"
	"time"
)

// HookPoint defines when a hook is triggered
type HookPoint string

const (
	// Remote call hooks
	BeforeRequest HookPoint = "before_request"
	AfterResponse HookPoint = "after_response"
	OnRetry       HookPoint = "on_retry"

	// Session lifecycle hooks
	OnSessionStart HookPoint = "on_session_start"
	OnSessionEnd   HookPoint = "on_session_end"
)

// ErrDenied is returned when a handler refuses a request.
var ErrDenied = errors.New("request denied by hook")

// Well-known HookData keys.
const (
	KeyMessage  = "message"
	KeyResponse = "response"
	KeyError    = "error"
	KeyAttempt  = "attempt"
	KeyDelay    = "delay"
)

// HookData carries context-specific information for hooks
type HookData struct {
	Point     HookPoint
	Timestamp time.Time
	Provider  string
	Model     string
	Data      map[string]any
}

// NewHookData creates a new HookData instance
func NewHookData(point HookPoint, provider, model string) *HookData {
	return &HookData{
		Point:     point,
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
		Data:      make(map[string]any),
	}
}

// Set sets a data field
func (d *HookData) Set(key string, value any) *HookData {
	d.Data[key] = value
	return d
}

// Get retrieves a data field
func (d *HookData) Get(key string) any {
	return d.Data[key]
}

// GetString retrieves a string data field
func (d *HookData) GetString(key string) string {
	if v, ok := d.Data[key].(string); ok {
		return v
	}
	return ""
}

// Feedback is returned by handlers to control execution flow
type Feedback struct {
	Allow   bool   // Whether to allow the operation to continue
	Message string // Optional message to display
}

// AllowFeedback creates an allow feedback
func AllowFeedback() *Feedback {
	return &Feedback{Allow: true}
}

// DenyFeedback creates a deny feedback with message
func DenyFeedback(message string) *Feedback {
	return &Feedback{Allow: false, Message: message}
}

// Handler is the interface for hook handlers
type Handler interface {
	Name() string

	// Points returns which hook points this handler listens to
	Points() []HookPoint

	Handle(ctx context.Context, data *HookData) (*Feedback, error)

	// Priority returns the handler priority (higher = earlier execution)
	Priority() int
}

// Func adapts a plain function into a Handler listening on one point.
type Func struct {
	HandlerName string
	Point       HookPoint
	Fn          func(ctx context.Context, data *HookData) (*Feedback, error)
}

func (f Func) Name() string { return f.HandlerName }
func (f Func) Points() []HookPoint { return []HookPoint{f.Point} }
func (f Func) Priority() int { return 0 }

func (f Func) Handle(ctx context.Context, data *HookData) (*Feedback, error) {
	return f.Fn(ctx, data)
}
