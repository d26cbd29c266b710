package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
)

const fixturePath = "testdata/fixtures/hotel.yaml"

// writeScenario writes content to a temp file. The placeholder FIXTURE is
// replaced with the absolute path of the shared test fixture.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	abs, err := filepath.Abs(fixturePath)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content = strings.ReplaceAll(content, "FIXTURE", abs)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
fixture: FIXTURE
window:
  start: 2025-08-18
  view: week
flow:
  - invoke: move
    args:
      stay: A
      from: R101@2025-08-18
      to: R102@2025-08-20
assertions:
  - type: trace_contains
    action: move
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, validScenario))
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Len(t, scenario.Flow, 1)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, "move", scenario.Flow[0].Invoke)
	assert.Equal(t, "R102@2025-08-20", scenario.Flow[0].Args["to"])

	w, err := scenario.Window.Build()
	require.NoError(t, err)
	assert.Equal(t, calendar.ViewWeek, w.Kind())
	assert.Equal(t, 7, w.Len())
}

func TestLoadScenario_ArgsKeepSourceText(t *testing.T) {
	path := writeScenario(t, `
name: args
description: "Scalars are kept as written"
fixture: FIXTURE
window: { start: 2025-08-18, days: 3 }
flow:
  - invoke: insert
    args: { id: Z, room: R101, check_in: 2025-08-25, check_out: 2025-08-26, adults: 02, total: 1.50 }
    expect:
      case: ok
      result: { version: 1 }
assertions:
  - type: trace_count
    action: insert
    count: 1
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	args := scenario.Flow[0].Args
	assert.Equal(t, "2025-08-25", args["check_in"])
	assert.Equal(t, "02", args["adults"])
	assert.Equal(t, "1.50", args["total"])
	assert.Equal(t, "1", scenario.Flow[0].Expect.Result["version"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, strings.Replace(validScenario, "assertions:", "assertion:", 1))
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_NestedArgsRejected(t *testing.T) {
	path := writeScenario(t, strings.Replace(validScenario, "stay: A", "stay: { id: A }", 1))
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value of "stay" must be a scalar`)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(string) string
		wantErr string
	}{
		{
			name:    "missing name",
			edit:    func(s string) string { return strings.Replace(s, "name: test_scenario", "", 1) },
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			edit:    func(s string) string { return strings.Replace(s, `description: "Test scenario for validation"`, "", 1) },
			wantErr: "description is required",
		},
		{
			name:    "missing fixture",
			edit:    func(s string) string { return strings.Replace(s, "fixture: FIXTURE", "", 1) },
			wantErr: "fixture is required",
		},
		{
			name: "fixture not found",
			edit: func(s string) string {
				return strings.Replace(s, "fixture: FIXTURE", "fixture: /nonexistent/hotel.yaml", 1)
			},
			wantErr: "fixture file not found",
		},
		{
			name:    "bad window",
			edit:    func(s string) string { return strings.Replace(s, "view: week", "view: fortnight", 1) },
			wantErr: "window:",
		},
		{
			name:    "missing flow",
			edit:    func(s string) string { return s[:strings.Index(s, "flow:")] + s[strings.Index(s, "assertions:"):] },
			wantErr: "flow list is required",
		},
		{
			name:    "unknown action",
			edit:    func(s string) string { return strings.Replace(s, "invoke: move", "invoke: teleport", 1) },
			wantErr: `unknown action "teleport"`,
		},
		{
			name: "missing args",
			edit: func(s string) string {
				return s[:strings.Index(s, "    args:")] + "assertions:\n  - type: trace_contains\n    action: move\n"
			},
			wantErr: "flow[0]: args is required",
		},
		{
			name:    "missing assertions",
			edit:    func(s string) string { return s[:strings.Index(s, "assertions:")] },
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion type",
			edit:    func(s string) string { return strings.Replace(s, "type: trace_contains", "type: vibes", 1) },
			wantErr: `unknown assertion type "vibes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, tt.edit(validScenario))
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"trace_order without actions", Assertion{Type: AssertTraceOrder}, "actions list is required"},
		{"trace_count negative", Assertion{Type: AssertTraceCount, Action: "move", Count: -1}, "count must be non-negative"},
		{"occupied without room", Assertion{Type: AssertOccupied, Date: "2025-08-18"}, "room is required"},
		{"occupied bad date", Assertion{Type: AssertOccupied, Room: "R101", Date: "18/08/2025"}, "date:"},
		{"available without end", Assertion{Type: AssertAvailable, Start: "2025-08-18"}, "end:"},
		{"stats without expect", Assertion{Type: AssertStats, Start: "2025-08-18", End: "2025-08-19"}, "expect is required for stats"},
		{"final_state without stay", Assertion{Type: AssertFinalState, Expect: Args{"version": "1"}}, "stay is required"},
		{"final_state without expect", Assertion{Type: AssertFinalState, Stay: "A"}, "expect is required for final_state"},
		{"connection without state", Assertion{Type: AssertConnection}, "state is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.assertion)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	require.NoError(t, validateAssertion(0, &Assertion{Type: AssertNotifications}))
	require.NoError(t, validateAssertion(0, &Assertion{Type: AssertTraceCount, Action: "move"}))
}

func TestLoadScenarioWithBasePath_ResolvesFixture(t *testing.T) {
	scenario, err := LoadScenarioWithBasePath("testdata/scenarios/drag_commit.yaml", "testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "fixtures", "hotel.yaml"), scenario.Fixture)
}

func TestLoadScenario_RelativeFixtureWithoutBasePath(t *testing.T) {
	// Relative to the working directory, which is not where the scenario is.
	_, err := LoadScenario("testdata/scenarios/drag_commit.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture file not found")
}
