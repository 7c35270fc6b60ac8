package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PLOTTING_MCP_WORKERS", "2")
	t.Setenv("PLOTTING_MCP_PORT", "9000")

	var out bytes.Buffer
	cfg, exit, err := loadConfig([]string{"--transport", "STDIO", "--workers", "3", "--data-dir", t.TempDir()}, &out)
	if err != nil || exit {
		t.Fatalf("loadConfig: exit=%v err=%v", exit, err)
	}
	if cfg.Transport != "stdio" {
		t.Errorf("transport: got %s", cfg.Transport)
	}
	if cfg.Workers != 3 {
		t.Errorf("flag should win over env: workers=%d", cfg.Workers)
	}
	if cfg.Port != 9000 {
		t.Errorf("env should apply when no flag is given: port=%d", cfg.Port)
	}
}

func TestLoadConfigVersionAndHelp(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "version", args: []string{"--version"}, want: "plotting-mcp dev"},
		{name: "short version", args: []string{"-v"}, want: "Git commit"},
		{name: "help", args: []string{"--help"}, want: "Usage: plotting-mcp [options]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, exit, err := loadConfig(tt.args, &out)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !exit {
				t.Error("expected exit")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q should contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "transport", args: []string{"--transport", "grpc"}},
		{name: "workers", args: []string{"--workers", "0"}},
		{name: "log level", args: []string{"--log-level", "loud"}},
		{name: "unknown flag", args: []string{"--colour"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if _, _, err := loadConfig(tt.args, &out); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
