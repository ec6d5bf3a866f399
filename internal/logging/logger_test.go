package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_WritesToConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "pipeline.log")

	logger, closer := New(Options{
		Level:     "info",
		Format:    "text",
		File:      path,
		MaxSizeMB: 1,
		Stdout:    &console,
	})
	logger.Info("refresh completed", "inserted", 3)
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(console.String(), "refresh completed") {
		t.Errorf("console output missing entry: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Errorf("debug entry written at info level: %q", console.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "inserted=3") {
		t.Errorf("log file missing entry: %q", string(data))
	}
}

func TestNew_FileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.log")

	for _, msg := range []string{"first run", "second run"} {
		logger, closer := New(Options{File: path, MaxSizeMB: 1, Stdout: &bytes.Buffer{}})
		logger.Info(msg)
		closer.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "first run") || !strings.Contains(string(data), "second run") {
		t.Errorf("log file should contain both runs: %q", string(data))
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var console bytes.Buffer
	logger, _ := New(Options{Format: "json", Stdout: &console})
	logger.Info("hello")

	if !strings.HasPrefix(strings.TrimSpace(console.String()), "{") {
		t.Errorf("expected JSON output, got %q", console.String())
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var console bytes.Buffer
	logger, _ := New(Options{Stdout: &console})
	prev := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	FromContext(ctx).Info("handled")

	if !strings.Contains(console.String(), "request_id=req-42") {
		t.Errorf("expected request_id in output, got %q", console.String())
	}
}
