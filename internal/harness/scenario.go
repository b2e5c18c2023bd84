package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/steady/pkg/object"
)

// DefaultTimeout bounds each wait for the engine to go idle.
const DefaultTimeout = 5 * time.Second

// Scenario is a sequence of commands against a fresh engine plus the
// assertions on its outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timeout bounds each idle wait and await step. Default: DefaultTimeout.
	Timeout string `yaml:"timeout,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions run after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir resolves relative apply paths.
	dir string
}

// Step is one scenario step. Exactly one of Insert, Remove, Apply and Await
// is set.
type Step struct {
	Insert *InsertStep `yaml:"insert,omitempty"`
	Remove *object.Ref `yaml:"remove,omitempty"`

	// Apply loads a CUE manifest directory and inserts every manifest.
	Apply string `yaml:"apply,omitempty"`

	Await *AwaitStep `yaml:"await,omitempty"`

	// Error is the error code the step must fail with, e.g. ALREADY_OWNED.
	Error string `yaml:"error,omitempty"`

	// Assert runs after the step settles.
	Assert []Assertion `yaml:"assert,omitempty"`
}

// InsertStep inserts one manifest, owned when Owner is set.
type InsertStep struct {
	Kind  object.Kind    `yaml:"kind"`
	Name  string         `yaml:"name"`
	Owner *object.Ref    `yaml:"owner,omitempty"`
	Props map[string]any `yaml:"props,omitempty"`
}

// AwaitStep polls until the names of a kind match.
type AwaitStep struct {
	Kind  object.Kind `yaml:"kind"`
	Names []string    `yaml:"names"`

	// Live polls the operator's live objects instead of the store.
	Live bool `yaml:"live,omitempty"`
}

// Assertion validates engine state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind and Name select a store, operator or object.
	Kind object.Kind `yaml:"kind,omitempty"`
	Name string      `yaml:"name,omitempty"`

	// Names is the expected name list (stored, live).
	Names []string `yaml:"names,omitempty"`

	// Owner and Refs are used by owned.
	Owner *object.Ref `yaml:"owner,omitempty"`
	Refs  []string    `yaml:"refs,omitempty"`

	// State is the expected runtime state subset (state).
	State map[string]any `yaml:"state,omitempty"`

	// Change, Ref and Count are used by trace_count.
	Change string `yaml:"change,omitempty"`
	Ref    string `yaml:"ref,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Events is the expected event order (trace_order).
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertStored     = "stored"
	AssertLive       = "live"
	AssertOwned      = "owned"
	AssertState      = "state"
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.dir = filepath.Dir(path)
	return scenario, nil
}

// ParseScenario parses scenario YAML. Relative apply paths resolve against
// the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// timeout returns the parsed Timeout. validateScenario has checked it.
func (s *Scenario) timeout() time.Duration {
	if s.Timeout == "" {
		return DefaultTimeout
	}
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

// resolve returns path relative to the scenario file.
func (s *Scenario) resolve(path string) string {
	if filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
		for j, a := range step.Assert {
			if err := validateAssertion(fmt.Sprintf("steps[%d].assert[%d]", i, j), &a); err != nil {
				return err
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(fmt.Sprintf("assertions[%d]", i), &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	set := 0
	if step.Insert != nil {
		set++
		if step.Insert.Kind == "" || step.Insert.Name == "" {
			return fmt.Errorf("steps[%d].insert: kind and name are required", index)
		}
	}
	if step.Remove != nil {
		set++
		if step.Remove.Kind == "" || step.Remove.Name == "" {
			return fmt.Errorf("steps[%d].remove: kind and name are required", index)
		}
	}
	if step.Apply != "" {
		set++
	}
	if step.Await != nil {
		set++
		if step.Await.Kind == "" {
			return fmt.Errorf("steps[%d].await: kind is required", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of insert, remove, apply, await is required", index)
	}
	return nil
}

func validateAssertion(where string, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("%s: type is required", where)
	case AssertStored, AssertLive:
		if a.Kind == "" {
			return fmt.Errorf("%s: kind is required for %s", where, a.Type)
		}
	case AssertOwned:
		if a.Owner == nil {
			return fmt.Errorf("%s: owner is required for owned", where)
		}
	case AssertState:
		if a.Kind == "" || a.Name == "" {
			return fmt.Errorf("%s: kind and name are required for state", where)
		}
		if len(a.State) == 0 {
			return fmt.Errorf("%s: state is required for state", where)
		}
	case AssertTraceCount:
		if a.Change == "" {
			return fmt.Errorf("%s: change is required for trace_count", where)
		}
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative for trace_count", where)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("%s: events list is required for trace_order", where)
		}
	default:
		return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
	}
	return nil
}
