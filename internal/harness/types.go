package harness

import (
	"github.com/bagoessprasetyo/property-management-sub000/internal/feed"
	"github.com/bagoessprasetyo/property-management-sub000/internal/notify"
)

// TraceEvent is one invocation or completion in a scenario trace.
type TraceEvent struct {
	Type   string `json:"type"` // "invocation" or "completion"
	Action string `json:"action,omitempty"`
	Args   Args   `json:"args,omitempty"`
	Case   string `json:"case,omitempty"`
	Result Args   `json:"result,omitempty"`
	Seq    int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains all invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Grid is the rendered scenario window after the flow.
	Grid string `json:"grid"`

	// Notifications is the final notification list, newest first.
	Notifications []notify.Notification `json:"notifications"`

	// Connection is the final change feed state.
	Connection feed.State `json:"connection"`

	// Refreshes and Polls count the refreshes the engine executed.
	Refreshes uint64 `json:"refreshes"`
	Polls     uint64 `json:"polls"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(action string, args Args, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   "invocation",
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(action, outputCase string, result Args, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   "completion",
		Action: action,
		Case:   outputCase,
		Result: result,
		Seq:    seq,
	})
}
