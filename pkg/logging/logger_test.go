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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

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
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
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
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level(%d).toSlogLevel() = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevel_Constants(t *testing.T) {
	// Levels must be ordered by severity for filtering to work
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("log levels are not ordered by severity")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"INFO", LevelInfo, false},
		{"Error", LevelError, false},
		{"  debug  ", LevelDebug, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	if logger.file != nil {
		t.Error("logger.file should be nil without LogDir")
	}
	if logger.exporter != nil {
		t.Error("logger.exporter should be nil without Exporter")
	}
}

func TestNew_AllLevels(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		t.Run(level.String(), func(t *testing.T) {
			logger := New(Config{Level: level, Quiet: true})
			if logger == nil {
				t.Fatal("New returned nil")
			}
			if logger.config.Level != level {
				t.Errorf("config.Level = %v, want %v", logger.config.Level, level)
			}
		})
	}
}

func TestNew_WithService(t *testing.T) {
	logger := New(Config{Service: "chronoctl", Quiet: true})
	if logger.config.Service != "chronoctl" {
		t.Errorf("config.Service = %q, want %q", logger.config.Service, "chronoctl")
	}
}

func TestNew_WithJSON(t *testing.T) {
	logger := New(Config{JSON: true})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	// Logging must not panic with JSON handler
	logger.Info("json test", "key", "value")
}

func TestNew_QuietMode(t *testing.T) {
	logger := New(Config{Quiet: true})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	// Still loggable (fallback handler)
	logger.Info("quiet test")
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "testservice",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil, expected log file to be created")
	}

	// File should exist with the service prefix and today's date
	wantName := fmt.Sprintf("testservice_%s.log", time.Now().Format("2006-01-02"))
	if _, err := os.Stat(filepath.Join(dir, wantName)); err != nil {
		t.Errorf("expected log file %s: %v", wantName, err)
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "chronograph_") {
		t.Errorf("log file %q should use the chronograph_ prefix", entries[0].Name())
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// A path component that is a regular file makes MkdirAll fail
	// regardless of privileges.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0640); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{
		LogDir: filepath.Join(blocker, "logs"),
		Quiet:  true,
	})

	// Logger degrades gracefully: no file, but still usable
	if logger.file != nil {
		t.Error("logger.file should be nil when the directory cannot be created")
	}
	logger.Info("still works")
}

func TestNew_WithExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})
	if logger.exporter != exporter {
		t.Error("logger.exporter does not match the configured exporter")
	}
}

func TestNew_MultipleHandlers(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "multi"})
	defer logger.Close()

	if logger.file == nil {
		t.Error("expected file handler alongside stderr")
	}
	logger.Info("fan-out test")
}

func TestNew_QuietWithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "quietfile", Quiet: true})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("expected file handler in quiet mode with LogDir")
	}

	logger.Info("file only", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	wantName := fmt.Sprintf("quietfile_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "file only") {
		t.Error("log file does not contain the message")
	}
}

func TestNew_OnlyQuiet(t *testing.T) {
	// Quiet with no other destination falls back to stderr so logs
	// are never silently lost.
	logger := New(Config{Quiet: true})
	if logger.slog == nil {
		t.Fatal("logger.slog is nil")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "chronograph" {
		t.Errorf("default service = %q, want %q", logger.config.Service, "chronograph")
	}
}

// =============================================================================
// Logging Method Tests
// =============================================================================

// waitForExport gives the async export goroutine time to run.
func waitForExport() {
	time.Sleep(50 * time.Millisecond)
}

func TestLogger_Debug(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelDebug, Exporter: exporter, Quiet: true})

	logger.Debug("debug message", "detail", "verbose")
	waitForExport()

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Level != LevelDebug {
		t.Errorf("entry level = %v, want LevelDebug", entries[0].Level)
	}
	if entries[0].Message != "debug message" {
		t.Errorf("entry message = %q", entries[0].Message)
	}
}

func TestLogger_Info(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter, Quiet: true})

	logger.Info("info message", "count", 42)
	waitForExport()

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Level != LevelInfo {
		t.Errorf("entry level = %v, want LevelInfo", entries[0].Level)
	}
	if entries[0].Attrs["count"] != 42 {
		t.Errorf("Attrs[count] = %v, want 42", entries[0].Attrs["count"])
	}
}

func TestLogger_Warn(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter, Quiet: true})

	logger.Warn("warn message")
	waitForExport()

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Level != LevelWarn {
		t.Errorf("entry level = %v, want LevelWarn", entries[0].Level)
	}
}

func TestLogger_Error(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter, Quiet: true})

	logger.Error("error message", "error", "something broke")
	waitForExport()

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Level != LevelError {
		t.Errorf("entry level = %v, want LevelError", entries[0].Level)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelWarn, Exporter: exporter, Quiet: true})

	logger.Debug("filtered")
	logger.Info("filtered")
	logger.Warn("kept")
	logger.Error("kept")
	waitForExport()

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (Debug and Info filtered)", len(entries))
	}
	for _, e := range entries {
		if e.Level < LevelWarn {
			t.Errorf("entry below LevelWarn was exported: %v", e.Level)
		}
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})

	child := logger.With("branch", "main")
	if child == nil {
		t.Fatal("With returned nil")
	}
	if child == logger {
		t.Error("With should return a new logger")
	}

	child.Info("from child")
	waitForExport()

	if len(exporter.Entries()) != 1 {
		t.Error("child logger should share the parent's exporter")
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	dir := t.TempDir()
	exporter := NewBufferedExporter()
	logger := New(Config{LogDir: dir, Exporter: exporter, Quiet: true})
	defer logger.Close()

	child := logger.With("version_id", "v42")
	if child.file != logger.file {
		t.Error("child should share the parent's file handle")
	}
	if child.exporter != logger.exporter {
		t.Error("child should share the parent's exporter")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	s := logger.Slog()
	if s == nil {
		t.Fatal("Slog returned nil")
	}
	// Must be usable directly
	s.Info("direct slog usage")
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent", "n", n)
		}(i)
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if got := len(exporter.Entries()); got != 100 {
		t.Errorf("got %d entries, want 100", got)
	}
}

func TestLogger_log_AllLevels(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelDebug, Exporter: exporter, Quiet: true})

	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		logger.log(level, "message at "+level.String())
	}
	waitForExport()

	entries := exporter.Entries()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	seen := make(map[Level]bool)
	for _, e := range entries {
		seen[e.Level] = true
	}
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if !seen[level] {
			t.Errorf("no entry exported at %v", level)
		}
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close without resources: %v", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	if logger.file == nil {
		t.Fatal("expected log file")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close with file: %v", err)
	}
}

func TestLogger_Close_WithExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close with exporter: %v", err)
	}
}

func TestLogger_Close_ExporterError(t *testing.T) {
	exporter := &errorExporter{flushErr: errors.New("flush failed")}
	logger := New(Config{Exporter: exporter, Quiet: true})

	err := logger.Close()
	if err == nil {
		t.Fatal("Close should propagate flush error")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("error = %v, want flush exporter wrap", err)
	}
}

func TestLogger_Close_CloseExporterError(t *testing.T) {
	exporter := &errorExporter{closeErr: errors.New("close failed")}
	logger := New(Config{Exporter: exporter, Quiet: true})

	err := logger.Close()
	if err == nil {
		t.Fatal("Close should propagate close error")
	}
	if !strings.Contains(err.Error(), "close exporter") {
		t.Errorf("error = %v, want close exporter wrap", err)
	}
}

func TestLogger_Close_MultipleErrors(t *testing.T) {
	exporter := &errorExporter{
		flushErr: errors.New("flush failed"),
		closeErr: errors.New("close failed"),
	}
	logger := New(Config{Exporter: exporter, Quiet: true})

	// First error wins: flush happens before close
	err := logger.Close()
	if err == nil {
		t.Fatal("Close should return an error")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("error = %v, want the flush error first", err)
	}
}

func TestLogger_Close_FileSyncError(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	if logger.file == nil {
		t.Fatal("expected log file")
	}

	// Closing the handle out from under the logger makes Sync fail
	logger.file.Close()

	err := logger.Close()
	if err == nil {
		t.Fatal("Close should report the sync failure")
	}
	if !strings.Contains(err.Error(), "sync log file") {
		t.Errorf("error = %v, want sync log file wrap", err)
	}
}

func TestLogger_ExportErrorSilentlyDropped(t *testing.T) {
	exporter := &errorExporter{exportErr: errors.New("export failed")}
	logger := New(Config{Exporter: exporter, Quiet: true})

	// Must not panic or block
	logger.Info("message that fails to export")
	waitForExport()
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	errorHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})

	h := &multiHandler{handlers: []slog.Handler{errorHandler, debugHandler}}
	ctx := context.Background()

	if !h.Enabled(ctx, slog.LevelDebug) {
		t.Error("Enabled should be true when any handler accepts the level")
	}

	strict := &multiHandler{handlers: []slog.Handler{errorHandler}}
	if strict.Enabled(ctx, slog.LevelDebug) {
		t.Error("Enabled should be false when no handler accepts the level")
	}
}

func TestMultiHandler_Handle(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	}}

	logger := slog.New(h)
	logger.Info("fan-out", "key", "value")

	if !strings.Contains(buf1.String(), "fan-out") {
		t.Error("first handler did not receive the record")
	}
	if !strings.Contains(buf2.String(), "fan-out") {
		t.Error("second handler did not receive the record")
	}
}

func TestMultiHandler_LevelFiltering(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	logger := slog.New(h)
	logger.Info("info only")

	if !strings.Contains(debugBuf.String(), "info only") {
		t.Error("debug handler should receive info records")
	}
	if errorBuf.Len() != 0 {
		t.Error("error handler should filter out info records")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("service", "test")})
	mh, ok := withAttrs.(*multiHandler)
	if !ok {
		t.Fatal("WithAttrs should return a *multiHandler")
	}
	if len(mh.handlers) != 1 {
		t.Errorf("got %d handlers, want 1", len(mh.handlers))
	}

	slog.New(withAttrs).Info("attr test")
	if !strings.Contains(buf.String(), "service=test") {
		t.Error("attribute was not applied")
	}
}

func TestMultiHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	withGroup := h.WithGroup("engine")
	if _, ok := withGroup.(*multiHandler); !ok {
		t.Fatal("WithGroup should return a *multiHandler")
	}

	slog.New(withGroup).Info("group test", "op", "commit")
	if !strings.Contains(buf.String(), "engine.op=commit") {
		t.Errorf("group was not applied: %s", buf.String())
	}
}

func TestMultiHandler_Empty(t *testing.T) {
	h := &multiHandler{}
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("empty multiHandler should not be enabled")
	}
	if err := h.Handle(ctx, slog.Record{}); err != nil {
		t.Errorf("empty Handle: %v", err)
	}
}

func TestMultiHandler_Handle_Error(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		&failingHandler{err: errors.New("handler broke")},
		slog.NewTextHandler(&buf, nil),
	}}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "test", 0)
	if err := h.Handle(context.Background(), r); err == nil {
		t.Error("Handle should propagate handler errors")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tilde prefix", "~/.chronograph/logs", filepath.Join(home, ".chronograph/logs")},
		{"bare tilde", "~", home},
		{"absolute path", "/var/log/chronograph", "/var/log/chronograph"},
		{"relative path", "logs/today", "logs/today"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandPath_NoHome(t *testing.T) {
	t.Setenv("HOME", "")
	if got := expandPath("~/logs"); got != "~/logs" {
		t.Errorf("expandPath without HOME = %q, want the path unchanged", got)
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{
			name: "simple pairs",
			args: []any{"key1", "value1", "key2", 123},
			want: map[string]any{"key1": "value1", "key2": 123},
		},
		{
			name: "empty",
			args: nil,
			want: map[string]any{},
		},
		{
			name: "orphan trailing arg",
			args: []any{"key1", "value1", "orphan"},
			want: map[string]any{"key1": "value1"},
		},
		{
			name: "non-string key skipped",
			args: []any{42, "value1", "key2", "value2"},
			want: map[string]any{"key2": "value2"},
		},
		{
			name: "mixed value types",
			args: []any{"s", "str", "i", 7, "b", true},
			want: map[string]any{"s": "str", "i": 7, "b": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d keys, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	ctx := context.Background()

	if err := e.Export(ctx, LogEntry{Message: "discarded"}); err != nil {
		t.Errorf("Export: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBufferedExporter(t *testing.T) {
	e := NewBufferedExporter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     LevelInfo,
			Message:   fmt.Sprintf("message %d", i),
		}
		if err := e.Export(ctx, entry); err != nil {
			t.Fatalf("Export: %v", err)
		}
	}

	entries := e.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Message != "message 0" {
		t.Errorf("entries out of order: %q", entries[0].Message)
	}

	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	entries := e.Entries()
	entries[0].Message = "mutated"

	if e.Entries()[0].Message != "original" {
		t.Error("Entries should return a copy, not the internal slice")
	}
}

func TestBufferedExporter_ConcurrentAccess(t *testing.T) {
	e := NewBufferedExporter()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = e.Export(ctx, LogEntry{Message: fmt.Sprintf("entry %d", n)})
			_ = e.Entries()
		}(i)
	}
	wg.Wait()

	if got := len(e.Entries()); got != 100 {
		t.Errorf("got %d entries, want 100", got)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)
	ctx := context.Background()

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "writer test",
		Attrs:     map[string]any{"key": "value"},
	}
	if err := e.Export(ctx, entry); err != nil {
		t.Fatalf("Export: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Errorf("output missing level: %q", out)
	}
	if !strings.Contains(out, "writer test") {
		t.Errorf("output missing message: %q", out)
	}

	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLogEntry_Fields(t *testing.T) {
	now := time.Now()
	entry := LogEntry{
		Timestamp: now,
		Level:     LevelWarn,
		Message:   "field check",
		Service:   "engine",
		Attrs:     map[string]any{"branch": "main"},
	}

	if !entry.Timestamp.Equal(now) {
		t.Error("Timestamp mismatch")
	}
	if entry.Level != LevelWarn {
		t.Error("Level mismatch")
	}
	if entry.Message != "field check" {
		t.Error("Message mismatch")
	}
	if entry.Service != "engine" {
		t.Error("Service mismatch")
	}
	if entry.Attrs["branch"] != "main" {
		t.Error("Attrs mismatch")
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestLogger_FullIntegration(t *testing.T) {
	dir := t.TempDir()
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelDebug,
		LogDir:   dir,
		Service:  "integration",
		Exporter: exporter,
		Quiet:    true,
	})

	logger.Debug("debug entry")
	logger.Info("info entry", "version_id", "v1")
	logger.Warn("warn entry")
	logger.Error("error entry")

	child := logger.With("branch", "feature/axioms")
	child.Info("child entry")

	time.Sleep(100 * time.Millisecond)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := exporter.Entries()
	if len(entries) != 5 {
		t.Errorf("got %d exported entries, want 5", len(entries))
	}
	for _, e := range entries {
		if e.Service != "integration" {
			t.Errorf("entry service = %q, want %q", e.Service, "integration")
		}
	}

	wantName := fmt.Sprintf("integration_%s.log", time.Now().Format("2006-01-02"))
	if _, err := os.Stat(filepath.Join(dir, wantName)); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestLogger_FileContent(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "content", Quiet: true})

	logger.Info("structured entry", "key", "value", "count", 3)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	wantName := fmt.Sprintf("content_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatal(err)
	}

	content := string(data)
	// File logs are always JSON
	if !strings.Contains(content, `"key":"value"`) {
		t.Errorf("file content missing JSON attribute: %s", content)
	}
	if !strings.Contains(content, "structured entry") {
		t.Errorf("file content missing message: %s", content)
	}
}

func TestConfig_ZeroValue(t *testing.T) {
	var config Config
	logger := New(config)
	if logger == nil {
		t.Fatal("New with zero Config returned nil")
	}
	logger.Info("zero config works")
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// =============================================================================
// Test Doubles
// =============================================================================

// errorExporter returns configured errors from each method.
type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error { return e.exportErr }
func (e *errorExporter) Flush(ctx context.Context) error                  { return e.flushErr }
func (e *errorExporter) Close() error                                     { return e.closeErr }

// failingHandler is a slog.Handler whose Handle always fails.
type failingHandler struct {
	err error
}

func (h *failingHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }
func (h *failingHandler) Handle(ctx context.Context, r slog.Record) error    { return h.err }
func (h *failingHandler) WithAttrs(attrs []slog.Attr) slog.Handler           { return h }
func (h *failingHandler) WithGroup(name string) slog.Handler                 { return h }
