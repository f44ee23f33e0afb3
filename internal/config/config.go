package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// KernelConfig holds configuration for the simulated kernel and the tools
// around it.
type KernelConfig struct {
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite trace database (default ~/.kthread/kthread.db, ":memory:" for testing)
	Addr      string `yaml:"addr"`       // Diagnostics listen address (default ":8080")

	Pages        int  `yaml:"pages"`         // Kernel pages available for task records
	MainPriority int  `yaml:"main_priority"` // Quantum of the bootstrap task
	IdlePriority int  `yaml:"idle_priority"` // Quantum of the idle task
	Debug        bool `yaml:"debug"`         // Check stack canaries on every switch

	TickInterval time.Duration `yaml:"tick_interval"` // 0 disables the timer
	RunTimeout   time.Duration `yaml:"run_timeout"`   // Watchdog for scenario runs
}

// DefaultKernelConfig returns sensible defaults.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":8080",
		Pages:        256,
		MainPriority: 31,
		IdlePriority: 10,
		Debug:        true,
		TickInterval: 0,
		RunTimeout:   10 * time.Second,
	}
}

// Load reads a YAML config file on top of the defaults. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func Load(path string) (KernelConfig, error) {
	cfg := DefaultKernelConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c KernelConfig) Validate() error {
	if c.Pages < 2 {
		return fmt.Errorf("pages must be at least 2 (main and idle), got %d", c.Pages)
	}
	if c.MainPriority <= 0 {
		return fmt.Errorf("main_priority must be positive, got %d", c.MainPriority)
	}
	if c.IdlePriority <= 0 {
		return fmt.Errorf("idle_priority must be positive, got %d", c.IdlePriority)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval must not be negative")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must not be negative")
	}
	return nil
}
