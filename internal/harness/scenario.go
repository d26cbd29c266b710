package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// Scenario defines an end-to-end engine scenario.
// A scenario seeds a property from a fixture, drives the engine through a
// flow of actions, and asserts on the resulting trace, grid and state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixture is the property fixture to seed, relative to the scenario
	// file when loaded with LoadScenarioWithBasePath.
	Fixture string `yaml:"fixture"`

	// Window is the grid view the engine keeps cached while the flow runs.
	Window WindowSpec `yaml:"window"`

	// Setup contains actions run after seeding and before the flow.
	// Setup actions must succeed.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the main flow - invocations with expected results.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// WindowSpec names a calendar view.
type WindowSpec struct {
	Start string `yaml:"start"`
	// View is day, week, month or rolling (the default).
	View string `yaml:"view,omitempty"`
	// Days is the rolling window length.
	Days int `yaml:"days,omitempty"`
}

// Build returns the calendar window the spec describes.
func (w WindowSpec) Build() (calendar.Window, error) {
	start, err := domain.ParseDate(w.Start)
	if err != nil {
		return calendar.Window{}, err
	}
	return calendar.ParseView(w.View, start, w.Days)
}

// Args are action or assertion arguments. Values keep their YAML source
// text, so unquoted dates stay YYYY-MM-DD.
type Args map[string]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Args) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	out := make(Args, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", v.Line, k.Value)
		}
		out[k.Value] = v.Value
	}
	*a = out
	return nil
}

// ActionStep represents a single action invocation.
// Used in Setup sections to establish initial state.
type ActionStep struct {
	// Action is the action name (e.g., "insert", "housekeeping").
	Action string `yaml:"action"`

	Args Args `yaml:"args"`
}

// FlowStep represents a step in the main flow.
// Each step invokes an action and optionally validates the completion.
type FlowStep struct {
	// Invoke is the action name to invoke.
	Invoke string `yaml:"invoke"`

	Args Args `yaml:"args"`

	// Expect specifies the expected completion.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected completion case (e.g., "committed", "conflict").
	Case string `yaml:"case"`

	// Result is a subset match against the completion's result fields.
	Result Args `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Action is the action name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected action arguments (trace_contains), subset match.
	Args Args `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count,
	// notifications).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Room and Date select one grid cell (occupied).
	Room string `yaml:"room,omitempty"`
	Date string `yaml:"date,omitempty"`

	// Stays lists the ids expected in the cell, in order (occupied).
	// An empty list asserts a free cell.
	Stays []string `yaml:"stays,omitempty"`

	// Start and End bound the period (available, stats).
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`

	// Rooms lists the rooms expected to be available, in room order
	// (available).
	Rooms []string `yaml:"rooms,omitempty"`

	// Stay is the stay id to look up in the store (final_state).
	Stay string `yaml:"stay,omitempty"`

	// Expect holds expected field values (final_state, stats), subset match.
	Expect Args `yaml:"expect,omitempty"`

	// Categories are the expected notification categories, newest first
	// (notifications).
	Categories []string `yaml:"categories,omitempty"`

	// State is the expected change feed state (connection).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertOccupied      = "occupied"
	AssertAvailable     = "available"
	AssertStats         = "stats"
	AssertNotifications = "notifications"
	AssertFinalState    = "final_state"
	AssertConnection    = "connection"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the fixture path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Fixture != "" && !filepath.IsAbs(scenario.Fixture) && basePath != "" {
		scenario.Fixture = filepath.Join(basePath, scenario.Fixture)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
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

	if s.Fixture == "" {
		return fmt.Errorf("fixture is required")
	}
	if _, err := os.Stat(s.Fixture); os.IsNotExist(err) {
		return fmt.Errorf("fixture file not found: %s", s.Fixture)
	}

	if _, err := s.Window.Build(); err != nil {
		return fmt.Errorf("window: %w", err)
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Action == "" {
			return fmt.Errorf("setup[%d]: action is required", i)
		}
		if !knownAction(step.Action) {
			return fmt.Errorf("setup[%d]: unknown action %q", i, step.Action)
		}
		if step.Args == nil {
			return fmt.Errorf("setup[%d]: args is required (use empty map if no args)", i)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !knownAction(step.Invoke) {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertOccupied:
		if a.Room == "" {
			return fmt.Errorf("assertions[%d]: room is required for occupied", index)
		}
		if _, err := domain.ParseDate(a.Date); err != nil {
			return fmt.Errorf("assertions[%d]: date: %w", index, err)
		}
	case AssertAvailable, AssertStats:
		if _, err := domain.ParseDate(a.Start); err != nil {
			return fmt.Errorf("assertions[%d]: start: %w", index, err)
		}
		if _, err := domain.ParseDate(a.End); err != nil {
			return fmt.Errorf("assertions[%d]: end: %w", index, err)
		}
		if a.Type == AssertStats && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stats", index)
		}
	case AssertNotifications:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for notifications", index)
		}
	case AssertFinalState:
		if a.Stay == "" {
			return fmt.Errorf("assertions[%d]: stay is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertConnection:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for connection", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
