// Package workload runs scripted task sets on a freshly booted kernel and
// records what the scheduler did with them.
package workload

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"

	"github.com/me/kthread/internal/kernel"
	"github.com/me/kthread/pkg/model"
)

// DefaultPriority is the quantum of a task that does not name one.
const DefaultPriority = 31

// Scenario is a set of tasks to run together.
type Scenario struct {
	Name         string        `yaml:"name"`
	TickInterval time.Duration `yaml:"tick_interval"` // overrides the kernel config when set
	Timeout      time.Duration `yaml:"timeout"`       // overrides the kernel config when set
	Tasks        []TaskSpec    `yaml:"tasks"`
}

// TaskSpec describes one task. Script is JavaScript run as the task body.
type TaskSpec struct {
	Name         string `yaml:"name"`
	Priority     int    `yaml:"priority"`
	AddressSpace bool   `yaml:"address_space"`
	Script       string `yaml:"script"`

	program *goja.Program
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario and compiles every task script.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return model.NewValidationError("scenario name is required")
	}
	if len(sc.Tasks) == 0 {
		return model.NewValidationError("scenario has no tasks")
	}
	if sc.TickInterval < 0 || sc.Timeout < 0 {
		return model.NewValidationError("tick_interval and timeout must not be negative")
	}

	seen := make(map[string]bool, len(sc.Tasks))
	for i := range sc.Tasks {
		ts := &sc.Tasks[i]
		switch {
		case ts.Name == "":
			return model.NewValidationError(fmt.Sprintf("tasks[%d]: name is required", i))
		case len(ts.Name) > kernel.NameLen:
			return model.NewValidationError(fmt.Sprintf("tasks[%d]: name %q is longer than %d bytes", i, ts.Name, kernel.NameLen))
		case ts.Name == "main" || ts.Name == "idle":
			return model.NewValidationError(fmt.Sprintf("tasks[%d]: name %q is reserved", i, ts.Name))
		case seen[ts.Name]:
			return model.NewValidationError(fmt.Sprintf("tasks[%d]: duplicate name %q", i, ts.Name))
		case ts.Priority < 0:
			return model.NewValidationError(fmt.Sprintf("task %s: priority must not be negative", ts.Name))
		}
		seen[ts.Name] = true
		if ts.Priority == 0 {
			ts.Priority = DefaultPriority
		}

		prog, err := goja.Compile(ts.Name, ts.Script, true)
		if err != nil {
			return model.NewValidationError(fmt.Sprintf("task %s: %v", ts.Name, err))
		}
		ts.program = prog
	}
	return nil
}
