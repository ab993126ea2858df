// Package logging wraps log/slog for ngxweb: a console or JSON handler with
// a runtime-adjustable level, and loggers scoped to a component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
)

// Level represents log severity levels.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var defaultLogger atomic.Pointer[Logger]

// Logger wraps slog with a dynamic level and component scoping.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config holds logger configuration.
type Config struct {
	Level     Level
	Output    io.Writer // defaults to stderr
	JSON      bool
	AddSource bool
}

// ParseLevel maps a config string to a Level; unknown values yield info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = NewConsoleHandler(cfg.Output, opts)
	}
	return &Logger{Logger: slog.New(handler), level: levelVar}
}

// Default returns the process logger: info level to stderr until SetDefault
// replaces it.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultLogger.CompareAndSwap(nil, New(Config{Level: LevelInfo}))
	return defaultLogger.Load()
}

// SetDefault replaces the process logger. Records written through the
// log/slog package default go to it as well.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
	slog.SetDefault(l.Logger)
}

// SetLevel changes the log level of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// Level returns the current log level.
func (l *Logger) Level() Level {
	return l.level.Level()
}

// WithComponent returns a logger with a component field.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name), level: l.level}
}

// Audit writes one line per audited API mutation at info level. Detail keys
// are emitted in sorted order.
func (l *Logger) Audit(actor, action, resource string, status int, details map[string]any) {
	args := []any{"actor", actor, "action", action, "resource", resource, "status", status}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, details[k])
	}
	l.Info("audit", args...)
}

// Warn logs at warn level on the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// WithComponent returns a component-scoped logger.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}
