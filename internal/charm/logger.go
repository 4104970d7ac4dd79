package charm

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ANSI color codes used when color output is enabled.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Logger provides formatted logging with color support and optional
// HTTP traffic tracing. All methods are safe on a nil receiver so that
// deeply nested code can log unconditionally.
type Logger struct {
	mu        sync.Mutex
	verbose   bool
	useColor  bool
	traceHTTP bool
	writer    io.Writer
}

// NewLogger creates a logger writing to stderr. Verbose enables debug-level
// messages, traceHTTP enables outbound request/response logging.
func NewLogger(verbose, useColor, traceHTTP bool) *Logger {
	return NewLoggerWithWriter(verbose, useColor, traceHTTP, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(verbose, useColor, traceHTTP bool, w io.Writer) *Logger {
	return &Logger{
		verbose:   verbose,
		useColor:  useColor,
		traceHTTP: traceHTTP,
		writer:    w,
	}
}

// SetVerbose toggles debug-level output at runtime.
func (l *Logger) SetVerbose(verbose bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// SetWriter replaces the output writer.
func (l *Logger) SetWriter(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

func (l *Logger) log(color, prefix, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.useColor && color != "" {
		fmt.Fprintf(l.writer, "%s%s%s%s\n", color, prefix, msg, colorReset)
	} else {
		fmt.Fprintf(l.writer, "%s%s\n", prefix, msg)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(colorCyan, "", format, args...)
}

// InfoVerbose logs an informational message only when verbose mode is enabled.
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.Info(format, args...)
}

// Success logs a success message.
func (l *Logger) Success(format string, args ...interface{}) {
	l.log(colorGreen, "✓ ", format, args...)
}

// Warning logs a warning message.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(colorYellow, "⚠ ", format, args...)
}

// WarningVerbose logs a warning only when verbose mode is enabled.
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.Warning(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(colorRed, "✗ ", format, args...)
}

// Debug logs a debug message when verbose mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.log(colorGray, "[debug] ", format, args...)
}

// Request logs an outbound HTTP request when HTTP tracing is enabled.
// Bearer tokens and API keys are never logged.
func (l *Logger) Request(method, path string) {
	if l == nil || !l.traceHTTP {
		return
	}
	l.log(colorGray, "→ ", "%s %s", method, path)
}

// Response logs an HTTP response when HTTP tracing is enabled.
func (l *Logger) Response(method, path string, status int) {
	if l == nil || !l.traceHTTP {
		return
	}
	l.log(colorGray, "← ", "%s %s %d", method, path, status)
}
