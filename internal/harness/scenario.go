package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: specs to load, steps to
// drive the runtime with and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE files to compile and load.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// MaxPasses overrides the runtime's per-cycle pass budget when positive.
	MaxPasses int `yaml:"max_passes,omitempty"`

	// Steps run in order after the instances are enabled and settled.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one driver action. Exactly one of Poll, Advance, Set, Send and
// Command is set.
type Step struct {
	// Poll runs this many extra poll cycles.
	Poll int `yaml:"poll,omitempty"`

	// Advance moves the fake clock by a duration such as "250ms".
	Advance string `yaml:"advance,omitempty"`

	// Set writes a property or moves a machine to a state.
	Set *SetStep `yaml:"set,omitempty"`

	// Send delivers a message from outside the registry.
	Send *SendStep `yaml:"send,omitempty"`

	// Command runs an operator command line, e.g. "DISABLE pump".
	Command string `yaml:"command,omitempty"`

	// Expect is the required command output. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// SetStep writes Machine.Property = Value, or moves Machine to State when
// State is set.
type SetStep struct {
	Machine  string `yaml:"machine"`
	Property string `yaml:"property,omitempty"`
	State    string `yaml:"state,omitempty"`
	Value    any    `yaml:"value,omitempty"`
}

// SendStep delivers Message to the machine To.
type SendStep struct {
	Message string `yaml:"message"`
	To      string `yaml:"to"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Machine names the machine (state, property, trace_contains, trace_count).
	Machine string `yaml:"machine,omitempty"`

	// State is the expected state (state) or traced state (trace_contains, trace_count).
	State string `yaml:"state,omitempty"`

	// Property names the property (property).
	Property string `yaml:"property,omitempty"`

	// Value is the expected property value (property).
	Value any `yaml:"value,omitempty"`

	// Event is the traced event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Message is the traced message text (trace_contains, trace_count).
	Message string `yaml:"message,omitempty"`

	// Messages is the expected delivery order (trace_order).
	Messages []string `yaml:"messages,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the store table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies row filters (final_state). All fields must match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state), subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertState         = "state"
	AssertProperty      = "property"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, specPath := range s.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			s.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := checkSpecFiles(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML without validating spec paths.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

func checkSpecFiles(s *Scenario) error {
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}
	return nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxPasses < 0 {
		return fmt.Errorf("max_passes must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	n := 0
	if st.Poll != 0 {
		n++
	}
	if st.Advance != "" {
		n++
	}
	if st.Set != nil {
		n++
	}
	if st.Send != nil {
		n++
	}
	if st.Command != "" {
		n++
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of poll, advance, set, send, command is required", index)
	}

	switch {
	case st.Poll < 0:
		return fmt.Errorf("steps[%d]: poll must be positive", index)
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	case st.Set != nil:
		if st.Set.Machine == "" {
			return fmt.Errorf("steps[%d]: set.machine is required", index)
		}
		if (st.Set.Property == "") == (st.Set.State == "") {
			return fmt.Errorf("steps[%d]: set needs exactly one of property or state", index)
		}
	case st.Send != nil:
		if st.Send.Message == "" || st.Send.To == "" {
			return fmt.Errorf("steps[%d]: send needs message and to", index)
		}
	}
	if st.Expect != "" && st.Command == "" {
		return fmt.Errorf("steps[%d]: expect is only valid with command", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if a.Machine == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: machine and state are required for state", index)
		}
	case AssertProperty:
		if a.Machine == "" || a.Property == "" {
			return fmt.Errorf("assertions[%d]: machine and property are required for property", index)
		}
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Messages) == 0 {
			return fmt.Errorf("assertions[%d]: messages list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
