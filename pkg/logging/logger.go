// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for rewind components.
//
// The package wraps log/slog with a small amount of policy: a shared
// Level type, optional JSON output, optional file logging under a
// per-service daily log file, and an optional LogExporter sink for
// shipping entries to an external collector. Components that only need
// a *slog.Logger should accept one and let callers pass Logger.Slog().
//
// Usage:
//
//	logger := logging.New(logging.Config{
//		Level:   logging.LevelInfo,
//		LogDir:  "~/.rewind/logs",
//		Service: "rewind",
//	})
//	defer logger.Close()
//
//	logger.Info("session created", "session_id", id)
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ===== Levels =====

// Level controls which log records are emitted.
type Level int

const (
	// LevelDebug emits everything, including per-operation detail.
	LevelDebug Level = iota
	// LevelInfo emits lifecycle events and state changes.
	LevelInfo
	// LevelWarn emits recoverable problems (cache refusals, skipped sessions).
	LevelWarn
	// LevelError emits failures that abort an operation.
	LevelError
)

// String returns the upper-case level name, or "UNKNOWN" for
// out-of-range values.
func (l Level) String() string {
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

// toSlogLevel maps Level onto the slog scale. Unknown values map to
// Info rather than failing.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a config string ("debug", "info", "warn",
// "error") to a Level. Unrecognized strings parse as LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// ===== Configuration =====

// Config describes a Logger.
type Config struct {
	// Level is the minimum level emitted. The zero value is
	// LevelDebug; callers should set this explicitly.
	Level Level

	// LogDir, when non-empty, enables JSON file logging under
	// LogDir/{service}_{YYYY-MM-DD}.log. Supports ~ expansion, e.g.
	// "~/.rewind/logs". File logging is best effort: an unusable
	// directory disables the file handler without failing New.
	LogDir string

	// Service tags every record with a service attribute and names
	// the log file. Default file prefix: "rewind".
	Service string

	// JSON switches the stderr handler from text to JSON.
	JSON bool

	// Quiet suppresses the stderr handler. File and exporter sinks
	// still receive records.
	Quiet bool

	// Exporter, when non-nil, receives every emitted record
	// asynchronously in addition to the slog handlers.
	Exporter LogExporter
}

// ===== Exporter contract =====

// LogExporter ships log entries to an external sink.
//
// Thread Safety: implementations must be safe for concurrent use.
type LogExporter interface {
	// Export delivers one entry. Errors are dropped by the Logger;
	// exporters that care should record failures themselves.
	Export(ctx context.Context, entry LogEntry) error

	// Flush forces any buffered entries out.
	Flush(ctx context.Context) error

	// Close releases exporter resources. Flush is not implied.
	Close() error
}

// LogEntry is the exporter-facing form of a log record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Service   string         `json:"service,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// ===== Logger =====

// Logger is a leveled structured logger with optional file and
// exporter sinks.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	mu       sync.Mutex
}

// New builds a Logger from config.
//
// Description:
//
//	Assembles up to three sinks: a stderr handler (text, or JSON when
//	config.JSON is set; omitted when Quiet), a JSON file handler when
//	LogDir is set, and the exporter. If every handler is disabled a
//	stderr text handler is kept so records are never silently lost.
//
// Outputs:
//   - *Logger: never nil. Call Close when done if LogDir or an
//     exporter is configured.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	var file *os.File
	if config.LogDir != "" {
		if f, err := openLogFile(config.LogDir, config.Service); err == nil {
			file = f
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	// Last resort so a misconfigured logger still writes somewhere.
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	return &Logger{
		slog:     slog.New(handler),
		config:   config,
		file:     file,
		exporter: config.Exporter,
	}
}

// Default returns an Info-level stderr logger tagged with the rewind
// service name.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "rewind"})
}

// Nop returns a logger that discards everything. Useful as the zero
// dependency in tests and library defaults.
func Nop() *Logger {
	return &Logger{
		slog:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: Config{Level: LevelError},
	}
}

// openLogFile opens (appending) the daily log file for service under
// dir, creating the directory as needed.
func openLogFile(dir, service string) (*os.File, error) {
	if service == "" {
		service = "rewind"
	}
	expanded := expandPath(dir)
	if err := os.MkdirAll(expanded, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(expanded, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Debug logs at debug level with alternating key/value args.
func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }

// Info logs at info level with alternating key/value args.
func (l *Logger) Info(msg string, args ...any) { l.log(LevelInfo, msg, args...) }

// Warn logs at warn level with alternating key/value args.
func (l *Logger) Warn(msg string, args ...any) { l.log(LevelWarn, msg, args...) }

// Error logs at error level with alternating key/value args.
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// log dispatches to slog and, when the record clears the configured
// level, ships it to the exporter on a background goroutine so slow
// sinks never stall the caller.
func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.exporter == nil || level < l.config.Level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Service:   l.config.Service,
		Attrs:     argsToMap(args),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.exporter.Export(ctx, entry)
	}()
}

// With returns a child logger carrying extra key/value context. The
// child shares the parent's file handle and exporter; closing either
// logger closes the shared resources.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog exposes the underlying *slog.Logger for components that take
// one directly.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the exporter and the log file. Safe to
// call on a logger with neither.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		cancel()
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ===== Fan-out handler =====

// multiHandler duplicates records across several slog handlers, each
// applying its own level gate.
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
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// ===== Helpers =====

// expandPath resolves a leading ~ to the user's home directory.
// Returns the input unchanged when there is no ~ prefix or the home
// directory cannot be resolved.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// argsToMap converts slog-style alternating key/value args to a map.
// Pairs with non-string keys are skipped, and a trailing odd value is
// dropped.
func argsToMap(args []any) map[string]any {
	m := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		m[key] = args[i+1]
	}
	return m
}

// ===== Exporters =====

// NopExporter discards every entry.
type NopExporter struct{}

func (*NopExporter) Export(context.Context, LogEntry) error { return nil }
func (*NopExporter) Flush(context.Context) error            { return nil }
func (*NopExporter) Close() error                           { return nil }

// BufferedExporter collects entries in memory for test assertions.
//
// Thread Safety: safe for concurrent use.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter returns an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{entries: make([]LogEntry, 0, 16)}
}

func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *BufferedExporter) Flush(context.Context) error { return nil }
func (e *BufferedExporter) Close() error                { return nil }

// Entries returns a copy of everything exported so far.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

// WriterExporter writes one line per entry to an io.Writer. Intended
// for piping logs into test output or a side channel.
//
// Thread Safety: safe for concurrent use.
type WriterExporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterExporter wraps w.
func NewWriterExporter(w io.Writer) *WriterExporter {
	return &WriterExporter{w: w}
}

func (e *WriterExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
	for k, v := range entry.Attrs {
		fmt.Fprintf(&sb, " %s=%v", k, v)
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(e.w, sb.String())
	return err
}

func (e *WriterExporter) Flush(context.Context) error { return nil }
func (e *WriterExporter) Close() error                { return nil }
