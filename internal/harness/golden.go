package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the deterministic part of a result as text: the trace,
// the final grid, the notification list and the feed counters.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	b.WriteString("\ntrace:\n")
	for _, ev := range result.Trace {
		switch ev.Type {
		case "invocation":
			fmt.Fprintf(&b, "  %3d > %s %s\n", ev.Seq, ev.Action, formatArgs(ev.Args))
		default:
			fmt.Fprintf(&b, "  %3d < %s %s %s\n", ev.Seq, ev.Action, ev.Case, formatArgs(ev.Result))
		}
	}

	b.WriteString("\ngrid:\n")
	for _, line := range strings.Split(strings.TrimRight(result.Grid, "\n"), "\n") {
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("\nnotifications:\n")
	for _, n := range result.Notifications {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", n.Category, n.Title, n.Message)
	}

	fmt.Fprintf(&b, "\nconnection: %s\n", result.Connection)
	fmt.Fprintf(&b, "refreshes: %d\n", result.Refreshes)
	fmt.Fprintf(&b, "polls: %d\n", result.Polls)
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass and Errors as well.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
