package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/engine"
	"github.com/bagoessprasetyo/property-management-sub000/internal/feed"
	"github.com/bagoessprasetyo/property-management-sub000/internal/fixture"
	"github.com/bagoessprasetyo/property-management-sub000/internal/schedule"
	"github.com/bagoessprasetyo/property-management-sub000/internal/store"
	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

// settleTimeout bounds the wait for the change feed to deliver a step's
// events.
const settleTimeout = 2 * time.Second

// Harness is the scenario execution engine.
// It drives a real engine over an in-memory store, an in-process change
// broker and a fake clock.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.FakeClock
	broker   *feed.Broker
	pub      *countingPublisher
	window   calendar.Window
	property string
	logger   *zap.Logger
	seq      int64
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger passes logger to the store and the engine.
func WithLogger(logger *zap.Logger) Option {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// actionFunc executes one action and reports its completion case and
// result fields.
type actionFunc func(h *Harness, ctx context.Context, args Args) (string, Args, error)

var actions map[string]actionFunc

func init() {
	actions = map[string]actionFunc{
		"move":         (*Harness).move,
		"insert":       (*Harness).insert,
		"status":       (*Harness).status,
		"cancel":       (*Harness).cancel,
		"delete":       (*Harness).delete,
		"housekeeping": (*Harness).housekeeping,
		"advance":      (*Harness).advance,
		"refresh":      (*Harness).refresh,
		"fail_feed":    (*Harness).failFeed,
		"resubscribe":  (*Harness).resubscribe,
	}
}

func knownAction(name string) bool {
	_, ok := actions[name]
	return ok
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database. Execution flow:
//  1. Seed the fixture (no feed is running yet, so seeding is silent)
//  2. Start the engine loop and the change feed, load the window
//  3. Execute setup steps, then flow steps with expect validation
//  4. Snapshot grid, notifications and feed state, evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := context.Background()

	fx, err := fixture.Load(scenario.Fixture)
	if err != nil {
		return nil, err
	}
	window, err := scenario.Window.Build()
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}

	clk := testutil.NewFakeClock()
	broker := feed.NewBroker(0)
	pub := &countingPublisher{broker: broker, filter: domain.ChangeFilter{PropertyID: fx.Property}}

	st, err := store.Open(":memory:",
		store.WithClock(clk),
		store.WithPublisher(pub),
		store.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	seeded, err := fx.Seed(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("failed to seed fixture: %w", err)
	}
	if len(seeded.Failures) > 0 {
		f := seeded.Failures[0]
		return nil, fmt.Errorf("failed to seed %s %s: %w", f.Entity, f.ID, f.Err)
	}

	eng := engine.New(st,
		engine.WithClock(clk),
		engine.WithIDs(testutil.NewSequentialIDs("h")),
		engine.WithPropertyID(fx.Property),
		engine.WithLogger(cfg.logger),
	)
	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = eng.Run(runCtx)
	}()
	defer func() {
		eng.Stop()
		cancel()
		<-stopped
	}()

	h := &Harness{
		store:    st,
		engine:   eng,
		clock:    clk,
		broker:   broker,
		pub:      pub,
		window:   window,
		property: fx.Property,
		logger:   cfg.logger,
	}

	if err := eng.StartFeed(ctx, broker); err != nil {
		return nil, fmt.Errorf("failed to start change feed: %w", err)
	}
	if _, err := eng.Grid(ctx, window); err != nil {
		return nil, fmt.Errorf("failed to load window: %w", err)
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}

	actx := &AssertionContext{
		Engine: eng,
		Store:  st,
		Window: window,
		Ctx:    ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSetup runs all setup steps. A setup step that does not complete
// with "ok" (or a committed move) fails the run.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	for i, step := range setup {
		outcome, err := h.execute(ctx, step.Action, step.Args, result)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if outcome != "ok" && outcome != string(schedule.OutcomeCommitted) {
			return fmt.Errorf("setup step %d: %s completed with %q", i, step.Action, outcome)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		n := len(result.Trace)
		outcome, err := h.execute(ctx, step.Invoke, step.Args, result)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.Expect == nil {
			continue
		}

		if outcome != step.Expect.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q", i, step.Invoke, step.Expect.Case, outcome))
			continue
		}
		got := result.Trace[n+1].Result
		for _, key := range sortedKeys(step.Expect.Result) {
			want := step.Expect.Result[key]
			if got[key] != want {
				result.AddError(fmt.Sprintf("flow[%d] %s: expected result %s=%q, got %q", i, step.Invoke, key, want, got[key]))
			}
		}
	}
	return nil
}

// execute records the invocation, runs the action, waits for its change
// events to be handled and records the completion.
func (h *Harness) execute(ctx context.Context, action string, args Args, result *Result) (string, error) {
	fn, ok := actions[action]
	if !ok {
		return "", fmt.Errorf("unknown action %q", action)
	}

	result.AddInvocationTrace(action, args, h.next())
	outcome, out, err := fn(h, ctx, args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", action, err)
	}
	if err := h.settle(ctx); err != nil {
		return "", fmt.Errorf("%s: %w", action, err)
	}
	result.AddCompletionTrace(action, outcome, out, h.next())

	h.logger.Debug("step completed", zap.String("action", action), zap.String("case", outcome))
	return outcome, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// settle waits until the listener has handled every event the store
// published since the last step, then until the engine loop is idle.
func (h *Harness) settle(ctx context.Context) error {
	deadline := time.Now().Add(settleTimeout)
	for h.engine.FeedEvents() < h.pub.delivered() {
		if time.Now().After(deadline) {
			return fmt.Errorf("change feed handled %d of %d events within %s",
				h.engine.FeedEvents(), h.pub.delivered(), settleTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	return h.engine.Sync(ctx)
}

func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	g, err := h.engine.Grid(ctx, h.window)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := calendar.Render(&buf, g); err != nil {
		return err
	}
	result.Grid = buf.String()
	result.Notifications = h.engine.Notifications().List()
	result.Connection = h.engine.ConnectionState()
	result.Refreshes, result.Polls = h.engine.Refreshes()
	return nil
}

// Actions.

func (h *Harness) move(ctx context.Context, args Args) (string, Args, error) {
	stayID, err := args.require("stay")
	if err != nil {
		return "", nil, err
	}
	src, err := schedule.ParseCell(args["from"])
	if err != nil {
		return "", nil, fmt.Errorf("from: %w", err)
	}
	dst, err := schedule.ParseCell(args["to"])
	if err != nil {
		return "", nil, fmt.Errorf("to: %w", err)
	}
	var opts []schedule.MoveOption
	if _, ok := args["check_out"]; ok {
		d, err := args.date("check_out")
		if err != nil {
			return "", nil, err
		}
		opts = append(opts, schedule.WithCheckOut(d))
	}

	outcome, moveErr := h.engine.ProposeMove(ctx, stayID, src, dst, opts...)
	out := Args{}
	var me *schedule.MoveError
	if moveErr != nil {
		if !errors.As(moveErr, &me) {
			return "", nil, moveErr
		}
		out["error"] = string(me.Code)
		if me.Err != nil {
			out["cause"] = storeCase(me.Err)
		}
	}
	if st, err := h.store.GetStay(ctx, stayID); err == nil {
		stayFields(out, st)
	}
	if outcome == "" {
		return caseOf(me.Code), out, nil
	}
	return string(outcome), out, nil
}

func (h *Harness) insert(ctx context.Context, args Args) (string, Args, error) {
	id, err := args.require("id")
	if err != nil {
		return "", nil, err
	}
	st := domain.Stay{
		ID:         id,
		PropertyID: h.property,
		RoomID:     args["room"],
		GuestID:    args["guest"],
		GuestName:  args["guest_name"],
		Status:     domain.StayStatus(args["status"]),
		Notes:      args["notes"],
	}
	if st.GuestID == "" {
		st.GuestID = "guest-" + id
	}
	if st.CheckIn, err = args.date("check_in"); err != nil {
		return "", nil, err
	}
	if st.CheckOut, err = args.date("check_out"); err != nil {
		return "", nil, err
	}
	if st.Adults, err = args.intOr("adults", 2); err != nil {
		return "", nil, err
	}
	if st.Children, err = args.intOr("children", 0); err != nil {
		return "", nil, err
	}
	total, err := args.intOr("total", 0)
	if err != nil {
		return "", nil, err
	}
	st.Total = domain.Money(total)

	saved, err := h.store.InsertStay(ctx, st)
	out := Args{}
	if err == nil {
		stayFields(out, saved)
	}
	return storeCase(err), out, nil
}

func (h *Harness) status(ctx context.Context, args Args) (string, Args, error) {
	id, err := args.require("id")
	if err != nil {
		return "", nil, err
	}
	status, err := args.require("status")
	if err != nil {
		return "", nil, err
	}
	return h.patch(ctx, id, domain.StayStatus(status))
}

func (h *Harness) cancel(ctx context.Context, args Args) (string, Args, error) {
	id, err := args.require("id")
	if err != nil {
		return "", nil, err
	}
	return h.patch(ctx, id, domain.StatusCancelled)
}

func (h *Harness) patch(ctx context.Context, id string, status domain.StayStatus) (string, Args, error) {
	updated, err := h.store.UpdateStay(ctx, id, domain.StayPatch{Status: &status})
	out := Args{}
	if err == nil {
		stayFields(out, updated)
	}
	return storeCase(err), out, nil
}

func (h *Harness) delete(ctx context.Context, args Args) (string, Args, error) {
	id, err := args.require("id")
	if err != nil {
		return "", nil, err
	}
	return storeCase(h.store.DeleteStay(ctx, id)), Args{}, nil
}

func (h *Harness) housekeeping(ctx context.Context, args Args) (string, Args, error) {
	roomID, err := args.require("room")
	if err != nil {
		return "", nil, err
	}
	status, err := args.require("status")
	if err != nil {
		return "", nil, err
	}
	room, err := h.store.SetHousekeeping(ctx, roomID, domain.Housekeeping(status))
	out := Args{}
	if err == nil {
		out["room_id"] = room.ID
		out["housekeeping"] = string(room.Housekeeping)
	}
	return storeCase(err), out, nil
}

// advance moves the fake clock, firing due debounce and poll timers.
func (h *Harness) advance(ctx context.Context, args Args) (string, Args, error) {
	by, err := args.require("by")
	if err != nil {
		return "", nil, err
	}
	d, err := time.ParseDuration(by)
	if err != nil {
		return "", nil, fmt.Errorf("by: %w", err)
	}
	h.clock.Advance(d)
	if err := h.engine.Sync(ctx); err != nil {
		return "", nil, err
	}
	refreshes, polls := h.engine.Refreshes()
	return "ok", Args{
		"refreshes": strconv.FormatUint(refreshes, 10),
		"polls":     strconv.FormatUint(polls, 10),
	}, nil
}

func (h *Harness) refresh(ctx context.Context, _ Args) (string, Args, error) {
	if err := h.engine.Refresh(ctx); err != nil {
		return "error", Args{"error": err.Error()}, nil
	}
	refreshes, _ := h.engine.Refreshes()
	return "ok", Args{"refreshes": strconv.FormatUint(refreshes, 10)}, nil
}

// failFeed ends the broker subscriptions with an error and waits for the
// listener to notice.
func (h *Harness) failFeed(ctx context.Context, args Args) (string, Args, error) {
	reason := args["reason"]
	if reason == "" {
		reason = "connection lost"
	}
	h.broker.Fail(errors.New(reason))

	deadline := time.Now().Add(settleTimeout)
	for h.engine.ConnectionState() != feed.StateError {
		if time.Now().After(deadline) {
			return "", nil, fmt.Errorf("feed still %s after %s", h.engine.ConnectionState(), settleTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	return "ok", Args{"state": string(h.engine.ConnectionState())}, nil
}

func (h *Harness) resubscribe(ctx context.Context, _ Args) (string, Args, error) {
	err := h.engine.Resubscribe(ctx)
	out := Args{"state": string(h.engine.ConnectionState())}
	if err != nil {
		out["error"] = err.Error()
		return "error", out, nil
	}
	return "ok", out, nil
}

// storeCase names the completion case for a store call.
func storeCase(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrExists):
		return "exists"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalid):
		return "invalid"
	}
	return "error"
}

func caseOf(code schedule.MoveErrorCode) string {
	switch code {
	case schedule.ErrCodeMoveInFlight:
		return "in_flight"
	case schedule.ErrCodeUnknownStay:
		return "unknown_stay"
	case schedule.ErrCodeInvalidMove:
		return "invalid_move"
	}
	return "rejected"
}

func stayFields(out Args, st domain.Stay) {
	out["room_id"] = st.RoomID
	out["check_in"] = st.CheckIn.String()
	out["check_out"] = st.CheckOut.String()
	out["status"] = string(st.Status)
	out["version"] = strconv.FormatInt(st.Version, 10)
	out["total"] = strconv.FormatInt(int64(st.Total), 10)
}

func (a Args) require(key string) (string, error) {
	v := a[key]
	if v == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}

func (a Args) date(key string) (domain.Date, error) {
	v, err := a.require(key)
	if err != nil {
		return domain.Date{}, err
	}
	d, err := domain.ParseDate(v)
	if err != nil {
		return domain.Date{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (a Args) intOr(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// countingPublisher forwards store events to the broker and counts the
// ones a live listener will receive.
type countingPublisher struct {
	broker *feed.Broker
	filter domain.ChangeFilter
	n      atomic.Uint64
}

func (p *countingPublisher) Publish(e domain.ChangeEvent) {
	if p.broker.Subscribers() > 0 && p.filter.Matches(e) {
		p.n.Add(1)
	}
	p.broker.Publish(e)
}

func (p *countingPublisher) delivered() uint64 { return p.n.Load() }
