package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/bagoessprasetyo/property-management-sub000/internal/availability"
	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/engine"
	"github.com/bagoessprasetyo/property-management-sub000/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == "invocation" {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, event.Action, formatArgs(event.Args))
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == "invocation" && event.Action == assertion.Action && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %s", assertion.Action, formatArgs(assertion.Args)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected action, 1-indexed.
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != "invocation" {
			continue
		}
		for _, expected := range assertion.Actions {
			if event.Action == expected && positions[expected] == 0 {
				positions[expected] = i + 1
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == "invocation" && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertOccupied checks the stay ids in one cell of the scenario window.
func assertOccupied(actx *AssertionContext, assertion Assertion) error {
	g, err := actx.Engine.Grid(actx.Ctx, actx.Window)
	if err != nil {
		return fmt.Errorf("occupied: %w", err)
	}
	d := domain.MustParseDate(assertion.Date)
	if _, ok := g.Cell(assertion.Room, d); !ok {
		return &AssertionError{
			Type:     AssertOccupied,
			Expected: fmt.Sprintf("cell %s@%s in window %s", assertion.Room, assertion.Date, actx.Window),
			Actual:   "no such cell",
		}
	}

	got := g.StayIDs(assertion.Room, d)
	if !slices.Equal(got, assertion.Stays) && (len(got) > 0 || len(assertion.Stays) > 0) {
		return &AssertionError{
			Type:     AssertOccupied,
			Expected: fmt.Sprintf("%s@%s holds %v", assertion.Room, assertion.Date, assertion.Stays),
			Actual:   fmt.Sprintf("holds %v", got),
		}
	}
	return nil
}

// assertAvailable checks which rooms are free for [start, end).
func assertAvailable(actx *AssertionContext, assertion Assertion) error {
	start, end := domain.MustParseDate(assertion.Start), domain.MustParseDate(assertion.End)
	results, err := actx.Engine.Availability(actx.Ctx, start, end)
	if err != nil {
		return fmt.Errorf("available: %w", err)
	}

	var got []string
	for _, r := range availability.Free(results) {
		got = append(got, r.ID)
	}
	if !slices.Equal(got, assertion.Rooms) && (len(got) > 0 || len(assertion.Rooms) > 0) {
		return &AssertionError{
			Type:     AssertAvailable,
			Expected: fmt.Sprintf("rooms %v free for %s..%s", assertion.Rooms, assertion.Start, assertion.End),
			Actual:   fmt.Sprintf("free: %v", got),
		}
	}
	return nil
}

// assertStats checks aggregate fields for [start, end]. Keys are the
// Stats JSON names or a status name for its count.
func assertStats(actx *AssertionContext, assertion Assertion) error {
	start, end := domain.MustParseDate(assertion.Start), domain.MustParseDate(assertion.End)
	st, err := actx.Engine.Stats(actx.Ctx, start, end)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fields := map[string]int64{
		"total":                int64(st.Total),
		"revenue":              int64(st.Revenue),
		"guests":               int64(st.Guests),
		"check_ins":            int64(st.CheckIns),
		"check_outs":           int64(st.CheckOuts),
		"occupied_room_nights": int64(st.OccupiedRoomNights),
		"nights":               int64(st.Nights),
	}
	for _, s := range domain.Statuses {
		fields[string(s)] = int64(st.ByStatus[s])
	}

	for _, key := range sortedKeys(assertion.Expect) {
		actual, ok := fields[key]
		if !ok {
			return fmt.Errorf("stats: unknown field %q", key)
		}
		if want := assertion.Expect[key]; strconv.FormatInt(actual, 10) != want {
			return &AssertionError{
				Type:     AssertStats,
				Expected: fmt.Sprintf("%s = %s", key, want),
				Actual:   fmt.Sprintf("%s = %d", key, actual),
			}
		}
	}
	return nil
}

// assertNotifications checks the notification count and, when given, the
// categories newest first.
func assertNotifications(actx *AssertionContext, assertion Assertion) error {
	list := actx.Engine.Notifications().List()
	if len(list) != assertion.Count {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%d notifications", assertion.Count),
			Actual:   fmt.Sprintf("%d notifications", len(list)),
		}
	}
	if len(assertion.Categories) == 0 {
		return nil
	}
	got := make([]string, len(list))
	for i, n := range list {
		got[i] = string(n.Category)
	}
	if !slices.Equal(got, assertion.Categories) {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("categories %v", assertion.Categories),
			Actual:   fmt.Sprintf("categories %v", got),
		}
	}
	return nil
}

// assertFinalState reads a stay from the store and checks the expected
// fields (subset match). Expecting exists: "false" asserts the stay is gone.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	stay, err := st.GetStay(ctx, assertion.Stay)
	if assertion.Expect["exists"] == "false" {
		if err == nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("stay %s to be deleted", assertion.Stay),
				Actual:   "stay exists",
			}
		}
		return nil
	}
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("stay %s", assertion.Stay),
			Actual:   err.Error(),
		}
	}

	actual := Args{"exists": "true"}
	stayFields(actual, stay)
	for _, key := range sortedKeys(assertion.Expect) {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("final_state: unknown field %q", key)
		}
		if want := assertion.Expect[key]; got != want {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("stay %s field %q = %q", assertion.Stay, key, want),
				Actual:   fmt.Sprintf("field %q = %q", key, got),
			}
		}
	}
	return nil
}

func assertConnection(actx *AssertionContext, assertion Assertion) error {
	if got := actx.Engine.ConnectionState(); string(got) != assertion.State {
		return &AssertionError{
			Type:     AssertConnection,
			Expected: fmt.Sprintf("change feed %s", assertion.State),
			Actual:   string(got),
		}
	}
	return nil
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected Args) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func sortedKeys(a Args) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatArgs renders args as {k=v, ...} with sorted keys.
func formatArgs(a Args) string {
	parts := make([]string, 0, len(a))
	for _, k := range sortedKeys(a) {
		parts = append(parts, k+"="+a[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// AssertionContext provides what assertions evaluate against.
type AssertionContext struct {
	Engine *engine.Engine
	Store  *store.Store
	Window calendar.Window
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Assertions other than the trace ones need actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			if actx == nil || actx.Engine == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertOccupied:
				err = assertOccupied(actx, assertion)
			case AssertAvailable:
				err = assertAvailable(actx, assertion)
			case AssertStats:
				err = assertStats(actx, assertion)
			case AssertNotifications:
				err = assertNotifications(actx, assertion)
			case AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			case AssertConnection:
				err = assertConnection(actx, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
