package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/killallgit/genesis/pkg/config"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides a unified logging interface
type Logger struct {
	level       LogLevel
	levelVar    *slog.LevelVar
	logger      *slog.Logger
	format      string
	file        *os.File
	initialized bool
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
	discard       = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Init initializes the logger with configuration from global config
func Init() error {
	mu.RLock()
	ready := defaultLogger != nil && defaultLogger.initialized
	mu.RUnlock()
	if ready {
		return nil
	}

	settings := config.Get()
	l, err := New(ParseLevel(settings.Logging.Level), settings.Logging.LogFile, settings.Logging.Preserve, settings.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return nil
}

// New creates a new Logger writing to logFile
func New(level LogLevel, logFile string, preserve bool, format string) (*Logger, error) {
	logPath := config.ResolvePath(logFile)
	if logPath == "" {
		logPath = config.BuildSettingsPath("system.log")
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if preserve {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(logPath, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWithWriter(level, file, format)
	l.file = file
	return l, nil
}

// NewWithWriter creates a Logger writing to w, without owning it
func NewWithWriter(level LogLevel, w io.Writer, format string) *Logger {
	levelVar := &slog.LevelVar{}
	levelVar.Set(level.slogLevel())

	return &Logger{
		level:       level,
		levelVar:    levelVar,
		logger:      slog.New(newHandler(w, format, levelVar)),
		format:      format,
		initialized: true,
	}
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ParseLevel converts a string level to LogLevel
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the minimum level at runtime
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.levelVar.Set(level.slogLevel())
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Log(context.Background(), level.slogLevel(), message)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Package-level convenience functions using the default logger

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Error(format, args...)
	}
}

// WithComponent returns a structured logger tagged with the component name.
// It follows the default logger, so it can be created before Init runs.
func WithComponent(name string) *slog.Logger {
	return slog.New(&forwardHandler{}).With("component", name)
}

// SetOutput redirects the default logger to w (useful for testing)
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewWithWriter(LevelDebug, w, "text")
		return
	}
	defaultLogger.logger = slog.New(newHandler(w, defaultLogger.format, defaultLogger.levelVar))
}

// Close closes the default logger
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		return nil
	}
	err := defaultLogger.Close()
	defaultLogger = nil
	return err
}

// forwardHandler resolves the default logger's handler on every record
type forwardHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h *forwardHandler) target() slog.Handler {
	base := discard.Handler()
	if l := current(); l != nil {
		base = l.logger.Handler()
	}
	for _, op := range h.ops {
		base = op(base)
	}
	return base
}

func (h *forwardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if l := current(); l != nil {
		return l.logger.Handler().Enabled(ctx, level)
	}
	return false
}

func (h *forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *forwardHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *forwardHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &forwardHandler{ops: append(ops, op)}
}
