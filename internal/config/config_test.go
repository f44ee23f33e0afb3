package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kthread.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultKernelConfig(t *testing.T) {
	cfg := DefaultKernelConfig()
	if cfg.MainPriority != 31 {
		t.Errorf("MainPriority = %d, want 31", cfg.MainPriority)
	}
	if cfg.IdlePriority != 10 {
		t.Errorf("IdlePriority = %d, want 10", cfg.IdlePriority)
	}
	if !cfg.Debug {
		t.Error("Debug should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
pages: 8
idle_priority: 1
tick_interval: 5ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Pages != 8 {
		t.Errorf("Pages = %d, want 8", cfg.Pages)
	}
	if cfg.IdlePriority != 1 {
		t.Errorf("IdlePriority = %d, want 1", cfg.IdlePriority)
	}
	if cfg.TickInterval != 5*time.Millisecond {
		t.Errorf("TickInterval = %v, want 5ms", cfg.TickInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.MainPriority != 31 {
		t.Errorf("MainPriority = %d, want 31", cfg.MainPriority)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", "pagez: 3\n", "field pagez not found"},
		{"too few pages", "pages: 1\n", "pages must be at least 2"},
		{"zero priority", "main_priority: 0\n", "main_priority must be positive"},
		{"negative tick", "tick_interval: -1s\n", "tick_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
