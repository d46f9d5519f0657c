// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// ===== Levels =====

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels must order Debug < Info < Warn < Error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ===== Constructors =====

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	defer logger.Close()
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
}

func TestNew_QuietStillHasHandler(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	// With stderr suppressed and no file or exporter, New keeps a
	// fallback handler rather than dropping records.
	if logger.slog == nil {
		t.Error("logger.slog is nil in quiet mode")
	}
	logger.Info("still works")
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "snapshots", Quiet: true})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil when LogDir set")
	}
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	if !strings.HasPrefix(files[0].Name(), "snapshots_") {
		t.Errorf("log file %q should carry the service prefix", files[0].Name())
	}
}

func TestNew_LogDirDefaultServiceName(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, _ := os.ReadDir(tmpDir)
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "rewind_") {
			found = true
		}
	}
	if !found {
		t.Error("expected log file with rewind_ prefix when Service is empty")
	}
}

func TestNew_UnusableLogDir(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail.
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("logger.file should be nil when LogDir cannot be created")
	}
	logger.Info("still works without the file sink")
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "rewind" {
		t.Errorf("Default service = %q, want rewind", logger.config.Service)
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	defer logger.Close()

	logger.Debug("dropped")
	logger.Error("dropped too")
	if logger.Slog() == nil {
		t.Error("Nop().Slog() returned nil")
	}
}

// ===== Logging and export =====

func TestLogger_ExportsAllLevels(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelDebug, Exporter: exporter, Quiet: true})
	defer logger.Close()

	logger.Debug("d", "k", 1)
	logger.Info("i", "k", 2)
	logger.Warn("w", "k", 3)
	logger.Error("e", "k", 4)

	waitForEntries(t, exporter, 4)

	// Exports are async, so assert by level rather than arrival order.
	byLevel := make(map[Level]LogEntry)
	for _, e := range exporter.Entries() {
		byLevel[e.Level] = e
	}
	for _, want := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if _, ok := byLevel[want]; !ok {
			t.Errorf("missing exported entry for level %v", want)
		}
	}
	if e := byLevel[LevelInfo]; e.Message != "i" || e.Attrs["k"] != 2 {
		t.Errorf("info entry = %+v, want message i with k=2", e)
	}
}

func TestLogger_LevelFiltersExport(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelWarn, Exporter: exporter, Quiet: true})
	defer logger.Close()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	waitForEntries(t, exporter, 2)

	if entries := exporter.Entries(); len(entries) != 2 {
		t.Errorf("expected 2 exported entries (warn+error), got %d", len(entries))
	}
}

func TestLogger_ServiceTagInEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Service: "coordinator", Exporter: exporter, Quiet: true})
	defer logger.Close()

	logger.Info("tagged")
	waitForEntries(t, exporter, 1)

	if got := exporter.Entries()[0].Service; got != "coordinator" {
		t.Errorf("Service = %q, want coordinator", got)
	}
}

func TestLogger_ExportErrorIsDropped(t *testing.T) {
	exporter := &errorExporter{exportErr: errors.New("sink down")}
	logger := New(Config{Level: LevelInfo, Exporter: exporter, Quiet: true})
	defer logger.Close()

	// Must not panic or surface the exporter failure.
	logger.Info("best effort")
	time.Sleep(20 * time.Millisecond)
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter, Quiet: true})
	defer logger.Close()

	child := logger.With("session_id", "abc123")
	if child == nil {
		t.Fatal("With() returned nil")
	}
	child.Info("scoped")

	waitForEntries(t, exporter, 1)
	if child.file != logger.file || child.exporter == nil {
		t.Error("child logger must share the parent's sinks")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter, Quiet: true})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent", "n", n)
		}(i)
	}
	wg.Wait()

	waitForEntries(t, exporter, 100)
	if entries := exporter.Entries(); len(entries) != 100 {
		t.Errorf("expected 100 entries, got %d", len(entries))
	}
}

func TestLogger_FileContentIsJSON(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: tmpDir, Service: "filetest", Quiet: true})

	logger.Info("persisted message", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("no log file created")
	}
	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(content), "persisted message") {
		t.Error("log file missing the message")
	}
	if !strings.Contains(string(content), `"key":"value"`) {
		t.Error("log file should be JSON with the attr pair")
	}
	if !strings.Contains(string(content), `"service":"filetest"`) {
		t.Error("log file should carry the service attribute")
	}
}

// ===== Close =====

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestLogger_Close_FlushErrorSurfaces(t *testing.T) {
	exporter := &errorExporter{flushErr: errors.New("flush failed")}
	logger := New(Config{Exporter: exporter, Quiet: true})

	err := logger.Close()
	if err == nil {
		t.Fatal("expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("error should mention flush exporter: %v", err)
	}
}

func TestLogger_Close_CollectsAllErrors(t *testing.T) {
	exporter := &errorExporter{
		flushErr: errors.New("flush failed"),
		closeErr: errors.New("close failed"),
	}
	logger := New(Config{Exporter: exporter, Quiet: true})

	err := logger.Close()
	if err == nil {
		t.Fatal("expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush exporter") || !strings.Contains(err.Error(), "close exporter") {
		t.Errorf("Close() should report both failures: %v", err)
	}
}

// ===== multiHandler =====

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	errOnly := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})

	mh := &multiHandler{handlers: []slog.Handler{debug, errOnly}}
	if !mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled while any handler accepts it")
	}

	strict := &multiHandler{handlers: []slog.Handler{errOnly}}
	if strict.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled when no handler accepts it")
	}
}

func TestMultiHandler_HandleFansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&buf1, opts),
		slog.NewTextHandler(&buf2, opts),
	}}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "fan out", 0)
	if err := mh.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if buf1.Len() == 0 || buf2.Len() == 0 {
		t.Error("both handlers should receive the record")
	}
}

func TestMultiHandler_HandleRespectsPerHandlerLevels(t *testing.T) {
	var verbose, quiet bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "info record", 0)
	_ = mh.Handle(context.Background(), r)

	if verbose.Len() == 0 {
		t.Error("debug handler should accept info records")
	}
	if quiet.Len() != 0 {
		t.Error("error-only handler should skip info records")
	}
}

func TestMultiHandler_HandleReturnsHandlerError(t *testing.T) {
	mh := &multiHandler{handlers: []slog.Handler{
		&failingHandler{err: errors.New("handler broke")},
	}}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)
	if err := mh.Handle(context.Background(), r); err == nil {
		t.Error("expected handler error to surface")
	}
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	withAttrs := mh.WithAttrs([]slog.Attr{slog.String("k", "v")})
	if _, ok := withAttrs.(*multiHandler); !ok {
		t.Error("WithAttrs should return *multiHandler")
	}
	withGroup := mh.WithGroup("g")
	if _, ok := withGroup.(*multiHandler); !ok {
		t.Error("WithGroup should return *multiHandler")
	}
}

func TestMultiHandler_Empty(t *testing.T) {
	mh := &multiHandler{}
	if mh.Enabled(context.Background(), slog.LevelError) {
		t.Error("empty multiHandler should report disabled")
	}
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)
	if err := mh.Handle(context.Background(), r); err != nil {
		t.Errorf("Handle on empty multiHandler: %v", err)
	}
}

// ===== Helpers =====

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~/.rewind/logs", filepath.Join(home, ".rewind/logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{"empty", nil, map[string]any{}},
		{"single pair", []any{"key", "value"}, map[string]any{"key": "value"}},
		{"mixed types", []any{"n", 42, "ok", true}, map[string]any{"n": 42, "ok": true}},
		{"odd tail dropped", []any{"k", "v", "orphan"}, map[string]any{"k": "v"}},
		{"non-string key skipped", []any{7, "v", "k2", "v2"}, map[string]any{"k2": "v2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("m[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

// ===== Exporters =====

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{Message: "x"}); err != nil {
		t.Errorf("Export: %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBufferedExporter_EntriesReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	first := e.Entries()
	first[0].Message = "mutated"

	if e.Entries()[0].Message != "original" {
		t.Error("Entries() must return a copy")
	}
}

func TestBufferedExporter_Concurrent(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Entries()
		}()
	}
	wg.Wait()

	if got := len(e.Entries()); got != 100 {
		t.Errorf("expected 100 entries, got %d", got)
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	err := e.Export(context.Background(), LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Message:   "disk almost full",
		Attrs:     map[string]any{"free_mb": 12},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "disk almost full") {
		t.Errorf("unexpected line: %q", out)
	}
	if !strings.Contains(out, "free_mb=12") {
		t.Errorf("line missing attrs: %q", out)
	}
}

func TestWriterExporter_OneLinePerEntry(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	wg.Wait()

	if lines := strings.Count(buf.String(), "\n"); lines != 50 {
		t.Errorf("expected 50 lines, got %d", lines)
	}
}

// ===== Test doubles =====

// waitForEntries polls the exporter until n entries arrive or the
// deadline passes, absorbing the async export goroutines.
func waitForEntries(t *testing.T, e *BufferedExporter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Entries()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d entries, have %d", n, len(e.Entries()))
}

type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(context.Context, LogEntry) error { return e.exportErr }
func (e *errorExporter) Flush(context.Context) error            { return e.flushErr }
func (e *errorExporter) Close() error                           { return e.closeErr }

type failingHandler struct {
	err error
}

func (h *failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *failingHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h *failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *failingHandler) WithGroup(string) slog.Handler             { return h }
