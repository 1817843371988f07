package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios drive a compiled program through a real engine and assert on
// the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE program directories.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Program selects a program by name. May be empty when the specs
	// define exactly one.
	Program string `yaml:"program,omitempty"`

	// MaxMessages overrides the engine's per-transaction message quota.
	MaxMessages int `yaml:"max_messages,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the engine. Exactly one of Dispatch, Enqueue
// or Drain is set.
type Step struct {
	// Dispatch names a message type to dispatch now. An empty string
	// dispatches an event with no type.
	Dispatch *string `yaml:"dispatch,omitempty"`

	// Enqueue names a message type to queue for a later drain.
	Enqueue *string `yaml:"enqueue,omitempty"`

	// Drain runs queued events until the queue is empty.
	Drain bool `yaml:"drain,omitempty"`

	// Payload is the event payload for dispatch and enqueue.
	Payload map[string]any `yaml:"payload,omitempty"`

	// ExpectError names the error class the step must fail with.
	// If empty, the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expected error classes.
const (
	ErrorInvalidEvent = "invalid_event"
	ErrorReentrant    = "reentrant"
	ErrorStage        = "stage"
	ErrorQuota        = "quota"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a message of Message type with Payload (subset) was reduced
	// - "trace_order": Messages were first reduced in this order
	// - "trace_count": Message was reduced exactly Count times
	// - "final_state": state fields (dotted paths) equal Expect
	// - "change_count": Count transactions changed the state
	// - "notify_count": subscribers were notified Count times
	// - "journal": the journal holds Count transactions with Status
	Type string `yaml:"type"`

	// Message is the message type name (trace_contains, trace_count).
	Message string `yaml:"message,omitempty"`

	// Payload is the expected payload, subset match (trace_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Messages is the expected order (trace_order).
	Messages []string `yaml:"messages,omitempty"`

	// Expect maps state paths to values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Status filters journal transactions: ok, failed or empty for all.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertChangeCount   = "change_count"
	AssertNotifyCount   = "notify_count"
	AssertJournal       = "journal"
)

// LoadScenario reads and parses a scenario YAML file, resolving spec paths
// relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes YAML without validating spec paths.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
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

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.MaxMessages < 0 {
		return fmt.Errorf("max_messages must be non-negative")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec path not found: %s", specPath)
		}
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
	actions := 0
	if st.Dispatch != nil {
		actions++
	}
	if st.Enqueue != nil {
		actions++
	}
	if st.Drain {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of dispatch, enqueue or drain is required", index)
	}

	if st.Drain && st.Payload != nil {
		return fmt.Errorf("steps[%d]: drain takes no payload", index)
	}
	if st.Enqueue != nil && *st.Enqueue == "" {
		return fmt.Errorf("steps[%d]: enqueue requires a message type", index)
	}
	if st.Enqueue != nil && st.ExpectError != "" {
		return fmt.Errorf("steps[%d]: enqueue cannot fail; put expect_error on the drain", index)
	}

	switch st.ExpectError {
	case "", ErrorInvalidEvent, ErrorReentrant, ErrorStage, ErrorQuota:
	default:
		return fmt.Errorf("steps[%d]: unknown expect_error %q", index, st.ExpectError)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Messages) == 0 {
			return fmt.Errorf("assertions[%d]: messages list is required for trace_order", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertChangeCount, AssertNotifyCount:
	case AssertJournal:
		switch a.Status {
		case "", "ok", "failed":
		default:
			return fmt.Errorf("assertions[%d]: journal status must be ok or failed", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
