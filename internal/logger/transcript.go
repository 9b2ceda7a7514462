package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const transcriptRule = "--------------------------------------------------"

// Transcript records one conversation to
// <dir>/chats/<provider>_<model>_<timestamp>.chat.
// A nil *Transcript is valid and discards everything.
type Transcript struct {
	mu           sync.Mutex
	w            io.WriteCloser
	path         string
	systemLogged bool
	now          func() time.Time
}

// NewTranscript creates the transcript file and writes its header. An
// empty dir disables transcripts and returns nil.
func NewTranscript(dir, provider, model string) (*Transcript, error) {
	if dir == "" {
		return nil, nil
	}
	chatDir := filepath.Join(dir, "chats")
	if err := os.MkdirAll(chatDir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.chat", provider, sanitize(model), time.Now().Format("20060102_150405"))
	path := filepath.Join(chatDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}

	t := &Transcript{w: f, path: path, now: time.Now}
	t.line("=== Chat Session Started ===")
	t.line("Provider: " + provider)
	t.line("Model: " + model)
	t.line(transcriptRule)
	return t, nil
}

func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

func (t *Transcript) SessionID(id string) {
	if t == nil {
		return
	}
	t.line("Session: " + id)
}

// User records an outgoing message. The system prompt and parameters are
// written once, before the first user entry.
func (t *Transcript) User(message, systemPrompt string, params map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	first := !t.systemLogged
	t.systemLogged = true
	t.mu.Unlock()

	if first && (systemPrompt != "" || len(params) > 0) {
		t.line("=== System Configuration ===")
		if systemPrompt != "" {
			t.line("[System Prompt] " + systemPrompt)
		}
		if len(params) > 0 {
			t.line("[Parameters] " + formatParams(params))
		}
		t.line(transcriptRule)
	}
	t.line("[User] " + message)
}

func (t *Transcript) Assistant(content, reasoning string) {
	if t == nil {
		return
	}
	if reasoning != "" {
		t.line("[Reasoning] " + reasoning)
	}
	t.line("[Assistant] " + content)
	t.line(transcriptRule)
}

func (t *Transcript) Error(err error) {
	if t == nil || err == nil {
		return
	}
	t.line("[Error] " + err.Error())
	t.line(transcriptRule)
}

func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.line("=== Chat Session Ended ===")
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Close()
}

func (t *Transcript) line(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "%s - %s\n", t.now().Format("2006-01-02 15:04:05"), s)
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}

// sanitize keeps model names such as "org/model:free" usable as a file name.
func sanitize(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "_").Replace(s)
}
