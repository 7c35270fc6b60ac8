package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "json",
			config: Config{Level: "info", Format: "json", ServiceName: "test-service"},
		},
		{
			name:   "debug level",
			config: Config{Level: "debug", Format: "json"},
		},
		{
			name:   "text format",
			config: Config{Level: "info", Format: "text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if log := New(tt.config); log == nil {
				t.Fatal("expected logger to be non-nil")
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	log := New(Config{
		Level:       "debug",
		Format:      "json",
		Output:      &buf,
		ServiceName: "plotting-mcp",
	})

	log.Info("plot rendered", "plot_type", "scatter")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "plot rendered" {
		t.Errorf("expected msg='plot rendered', got %v", entry["msg"])
	}
	if entry["plot_type"] != "scatter" {
		t.Errorf("expected plot_type='scatter', got %v", entry["plot_type"])
	}
	if entry["service"] != "plotting-mcp" {
		t.Errorf("expected service='plotting-mcp', got %v", entry["service"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level='INFO', got %v", entry["level"])
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Debug("debug message")
	log.Info("info message")
	if buf.Len() > 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}

	log.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("expected warn message to be logged")
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.WithComponent("dispatch").WithJobID("job-1").WithError(errors.New("boom")).Info("job failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["component"] != "dispatch" {
		t.Errorf("expected component='dispatch', got %v", entry["component"])
	}
	if entry["job_id"] != "job-1" {
		t.Errorf("expected job_id='job-1', got %v", entry["job_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error='boom', got %v", entry["error"])
	}

	if log.WithError(nil) != log {
		t.Error("expected WithError(nil) to return the same logger")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-7")
	ctx = ContextWithJobID(ctx, "job-9")

	log.FromContext(ctx).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-7"`) {
		t.Errorf("expected request_id in output, got %s", out)
	}
	if !strings.Contains(out, `"job_id":"job-9"`) {
		t.Errorf("expected job_id in output, got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warning ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got := ValidLevel(tt.input); got != tt.valid {
				t.Errorf("ValidLevel(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}
