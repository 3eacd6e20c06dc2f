// Package log is the daemon and CLI logger: a log/slog fan-out to stderr and
// to a daily JSONL debug file.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu         sync.RWMutex
	logger     = slog.Default()
	base       = logger.Handler()
	fileWriter *FileWriter
)

// Options configures the logger.
type Options struct {
	// Verbose lowers the stderr threshold from warn to debug.
	Verbose bool
	// JSONFormat switches stderr output from text to JSON.
	JSONFormat bool
	// DebugDir receives YYYY-MM-DD.jsonl files at debug level. Empty disables file logging.
	DebugDir string
	// RetentionDays removes debug files older than this many days (0 keeps all).
	RetentionDays int
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Init replaces the global logger.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	stderrOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(stderr, stderrOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, stderrOpts))
	}

	Close()
	if opts.DebugDir != "" {
		if opts.RetentionDays > 0 {
			Cleanup(opts.DebugDir, opts.RetentionDays)
		}
		fw, err := NewFileWriter(opts.DebugDir)
		if err != nil {
			return err
		}
		mu.Lock()
		fileWriter = fw
		mu.Unlock()
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	setHandler(&multiHandler{handlers: handlers}, true)
	return nil
}

// Close closes the debug file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
}

func setHandler(h slog.Handler, isBase bool) {
	mu.Lock()
	defer mu.Unlock()
	if isBase {
		base = h
	}
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// multiHandler fans out log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Info logs an info message.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Warn logs a warning message.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Error logs an error message.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a logger with additional context.
func With(args ...any) *slog.Logger { return current().With(args...) }

// SetOutput sends all levels as text to w (for testing).
func SetOutput(w io.Writer) {
	setHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}), true)
}

// SetTimerID tags subsequent log lines with the active timer's id.
func SetTimerID(id string) {
	mu.RLock()
	h := base
	mu.RUnlock()
	setHandler(h.WithAttrs([]slog.Attr{slog.String("timer_id", id)}), false)
}

// ClearTimerID drops the timer_id tag.
func ClearTimerID() {
	mu.RLock()
	h := base
	mu.RUnlock()
	setHandler(h, false)
}
