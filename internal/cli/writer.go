package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ANSI Color codes
const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorGray    = "\033[90m"
	ColorBold    = "\033[1m"
)

// Writer provides utilities for writing (optionally colored) text to a
// terminal. It is safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	writer    io.Writer
	colorMode bool
}

func NewWriter(w io.Writer) *Writer {
	if w == nil {
		w = os.Stdout
	}
	return &Writer{
		writer:    w,
		colorMode: true,
	}
}

func (w *Writer) SetColorMode(enabled bool) {
	w.colorMode = enabled
}

func (w *Writer) ColorMode() bool {
	return w.colorMode
}

// Write writes content to the output
func (w *Writer) Write(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprint(w.writer, content)
}

// WriteLine writes a line to the output
func (w *Writer) WriteLine(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.writer, content)
}

// WriteColored writes colored content if color mode is enabled
func (w *Writer) WriteColored(content, color string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.colorMode {
		fmt.Fprintf(w.writer, "%s%s%s", color, content, ColorReset)
	} else {
		fmt.Fprint(w.writer, content)
	}
}

// Flush ensures all content is written (useful for buffered writers)
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if flusher, ok := w.writer.(interface{ Flush() error }); ok {
		flusher.Flush()
	}
}

// ProgressIndicator shows a spinner while a request is in flight.
type ProgressIndicator struct {
	writer   *Writer
	frames   []string
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewProgressIndicator(writer *Writer) *ProgressIndicator {
	return &ProgressIndicator{
		writer:   writer,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 100 * time.Millisecond,
	}
}

// Start begins animating message until Stop is called. Starting an
// already running indicator does nothing.
func (pi *ProgressIndicator) Start(message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.stop != nil {
		return
	}
	pi.stop = make(chan struct{})
	pi.done = make(chan struct{})

	go pi.run(message, pi.stop, pi.done)
}

func (pi *ProgressIndicator) run(message string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pi.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		frame := pi.frames[i%len(pi.frames)]
		pi.writer.WriteColored(fmt.Sprintf("\r%s %s", frame, message), ColorCyan)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop stops and clears the progress indicator
func (pi *ProgressIndicator) Stop() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.stop == nil {
		return
	}
	close(pi.stop)
	<-pi.done
	pi.stop, pi.done = nil, nil
	pi.writer.Write("\r\033[K") // Clear line
}
