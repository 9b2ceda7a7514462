package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota // Debug information (only shown with --verbose)
	LevelInfo               // Important steps
	LevelWarn               // Retries and recoverable problems
	LevelError              // Error messages
)

// ParseLevel maps LOG_LEVEL values (case-insensitive) to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// ANSI color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
	ColorBold   = "\033[1m"
)

// summaryLength is how many runes of a message or response are logged.
const summaryLength = 200

// Logger provides leveled logging for providers and sessions
type Logger struct {
	mu        sync.Mutex
	writer    io.Writer
	level     Level
	showTime  bool
	colorMode bool
}

// NewLogger creates a new Logger instance
func NewLogger(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		writer:    w,
		level:     level,
		showTime:  true,
		colorMode: true,
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	l := NewLogger(io.Discard, LevelError+1)
	l.colorMode = false
	return l
}

// SetColorMode enables or disables colored output
func (l *Logger) SetColorMode(enabled bool) {
	l.colorMode = enabled
}

// SetShowTime enables or disables timestamp display
func (l *Logger) SetShowTime(enabled bool) {
	l.showTime = enabled
}

func (l *Logger) Level() Level {
	return l.level
}

// Debug logs debug information (only shown in verbose mode)
func (l *Logger) Debug(format string, args ...any) {
	if l.level <= LevelDebug {
		l.log(ColorGray, "DEBUG", format, args...)
	}
}

// Info logs general information
func (l *Logger) Info(format string, args ...any) {
	if l.level <= LevelInfo {
		l.log(ColorBlue, "INFO", format, args...)
	}
}

func (l *Logger) Warn(format string, args ...any) {
	if l.level <= LevelWarn {
		l.log(ColorYellow, "WARN", format, args...)
	}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...any) {
	if l.level <= LevelError {
		l.log(ColorRed, "ERROR", format, args...)
	}
}

// Request logs a summary of an outgoing request. The full message and
// system prompt only appear at debug level.
func (l *Logger) Request(provider, model, message, systemPrompt string) {
	l.Info("[%s] request - model: %s - message: %s", provider, model, Truncate(message, summaryLength))
	if systemPrompt != "" {
		l.Debug("[%s] system prompt: %s", provider, systemPrompt)
	}
}

// Response logs a summary of a successful response.
func (l *Logger) Response(provider, content string) {
	l.Info("[%s] response received (%d chars)", provider, len(content))
	l.Debug("[%s] response: %s", provider, Truncate(content, summaryLength))
}

// Failure logs an error together with what was being attempted.
func (l *Logger) Failure(provider string, err error, context string) {
	if context != "" {
		l.Error("[%s] %s: %v", provider, context, err)
		return
	}
	l.Error("[%s] %v", provider, err)
}

// SessionStart logs the beginning of a chat session
func (l *Logger) SessionStart(provider, model, id string) {
	l.printBanner(ColorCyan, "Session Started", fmt.Sprintf("Provider: %s | Model: %s | ID: %s", provider, model, id))
}

// SessionEnd logs the end of a chat session with statistics
func (l *Logger) SessionEnd(duration time.Duration, calls int) {
	summary := fmt.Sprintf("Duration: %s | Remote Calls: %d", duration.Round(time.Millisecond), calls)
	l.printBanner(ColorGreen, "Session Closed", summary)
}

// Params logs request parameters, pretty-printing long JSON.
func (l *Logger) Params(provider string, params map[string]any) {
	if l.level > LevelDebug || len(params) == 0 {
		return
	}
	data, err := json.Marshal(params)
	if err != nil {
		return
	}
	l.Debug("[%s] params: %s", provider, formatJSON(string(data)))
}

// log is the core logging method
func (l *Logger) log(color, level, format string, args ...any) {
	timestamp := ""
	if l.showTime {
		timestamp = time.Now().Format("15:04:05") + " "
	}

	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.colorMode {
		fmt.Fprintf(l.writer, "%s%s[%s]%s %s\n",
			color, timestamp, level, ColorReset, msg)
	} else {
		fmt.Fprintf(l.writer, "%s[%s] %s\n", timestamp, level, msg)
	}
}

// printBanner prints a prominent banner for session start/end
func (l *Logger) printBanner(color, title, subtitle string) {
	if l.level > LevelInfo {
		return
	}
	separator := strings.Repeat("═", 70)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.colorMode {
		fmt.Fprintf(l.writer, "\n%s%s%s%s\n", ColorBold, color, separator, ColorReset)
		fmt.Fprintf(l.writer, "%s%s  %s%s\n", ColorBold, color, title, ColorReset)
		if subtitle != "" {
			fmt.Fprintf(l.writer, "%s  %s%s\n", color, subtitle, ColorReset)
		}
		fmt.Fprintf(l.writer, "%s%s%s%s\n\n", ColorBold, color, separator, ColorReset)
	} else {
		fmt.Fprintf(l.writer, "\n%s\n  %s\n", separator, title)
		if subtitle != "" {
			fmt.Fprintf(l.writer, "  %s\n", subtitle)
		}
		fmt.Fprintf(l.writer, "%s\n\n", separator)
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// formatJSON formats JSON strings adaptively based on length
// Short JSON (< 80 chars) stays compact, long JSON gets pretty-printed
func formatJSON(jsonStr string) string {
	compact := strings.TrimSpace(jsonStr)

	if len(compact) < 80 {
		return compact
	}

	var obj any
	if err := json.Unmarshal([]byte(compact), &obj); err != nil {
		return compact
	}

	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return compact
	}

	return string(pretty)
}
