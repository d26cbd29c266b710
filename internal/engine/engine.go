package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/availability"
	"github.com/bagoessprasetyo/property-management-sub000/internal/cache"
	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/clock"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/feed"
	"github.com/bagoessprasetyo/property-management-sub000/internal/ids"
	"github.com/bagoessprasetyo/property-management-sub000/internal/notify"
	"github.com/bagoessprasetyo/property-management-sub000/internal/refresh"
	"github.com/bagoessprasetyo/property-management-sub000/internal/schedule"
)

// StayReader loads stays and rooms from the authoritative store.
type StayReader interface {
	FetchStays(ctx context.Context, filter domain.StayFilter) ([]domain.Stay, error)
	FetchRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error)
}

// Store is everything the engine needs from the stay store.
type Store interface {
	StayReader
	schedule.StayMutator
}

// Engine is the reservation grid engine.
//
// Thread-safety model:
//   - Queries, ProposeMove and feed control: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store     Store
	index     *cache.Index
	protocol  *schedule.Protocol
	debouncer *refresh.Debouncer
	center    *notify.Center
	queue     *eventQueue

	clock        clock.Clock
	ids          ids.Generator
	logger       *zap.Logger
	propertyID   string
	debounce     time.Duration
	pollInterval time.Duration
	capacity     int

	mu       sync.Mutex
	rooms    []domain.Room
	roomsOK  bool
	listener *feed.Listener
	watchers []func(from, to feed.State)

	refreshes atomic.Uint64
	polls     atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for the debouncer, poller, moves and
// notifications.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the id generator for moves and notifications.
func WithIDs(g ids.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPropertyID scopes every query and the change feed to one property.
func WithPropertyID(id string) Option {
	return func(e *Engine) { e.propertyID = id }
}

// WithDebounce sets the refresh quiet period.
//
// Default: 500ms (refresh.DefaultWindow)
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithPollInterval sets the fallback poll period.
//
// Default: 30s (refresh.DefaultPollInterval)
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// WithNotificationCapacity bounds the notification list.
//
// Default: 50 (notify.DefaultCapacity)
func WithNotificationCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// New creates an Engine over store. The engine does no work until it is
// queried; call Run to execute refreshes and StartFeed to follow remote
// changes.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		queue:        newEventQueue(),
		clock:        clock.Real{},
		ids:          ids.UUIDv7{},
		logger:       zap.NewNop(),
		debounce:     refresh.DefaultWindow,
		pollInterval: refresh.DefaultPollInterval,
		capacity:     notify.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.index = cache.New(cache.WithLogger(e.logger))
	e.center = notify.NewCenter(
		notify.WithClock(e.clock),
		notify.WithIDs(e.ids),
		notify.WithCapacity(e.capacity),
	)
	e.debouncer = refresh.NewDebouncer(
		func() { e.enqueue(EventTypeRefresh) },
		refresh.WithClock(e.clock),
		refresh.WithWindow(e.debounce),
		refresh.WithLogger(e.logger),
	)
	e.protocol = schedule.New(e.index, store,
		schedule.WithClock(e.clock),
		schedule.WithIDs(e.ids),
		schedule.WithRefresh(e.debouncer.Request),
		schedule.WithLogger(e.logger),
	)
	return e
}

// Index returns the cache index behind every view.
func (e *Engine) Index() *cache.Index { return e.index }

// Notifications returns the notification list.
func (e *Engine) Notifications() *notify.Center { return e.center }

// Debouncer returns the refresh debouncer.
func (e *Engine) Debouncer() *refresh.Debouncer { return e.debouncer }

// PropertyID returns the property the engine is scoped to, or "".
func (e *Engine) PropertyID() string { return e.propertyID }

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

func (e *Engine) enqueue(t EventType) {
	if !e.queue.Enqueue(Event{Type: t}) {
		e.logger.Debug("engine stopped, dropping event", zap.Stringer("type", t))
	}
}

// QueueLen returns the number of events waiting for Run.
func (e *Engine) QueueLen() int { return e.queue.Len() }

// RequestRefresh asks for a debounced refresh.
func (e *Engine) RequestRefresh() { e.debouncer.Request() }

// Refresh queues an immediate refresh and waits for Run to execute it.
func (e *Engine) Refresh(ctx context.Context) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(Event{Type: EventTypeRefresh, Done: done}) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until Run has processed every event queued so far.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(Event{Type: EventTypeSync, Done: done}) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refreshes returns how many refreshes and fallback polls Run executed.
func (e *Engine) Refreshes() (refreshes, polls uint64) {
	return e.refreshes.Load(), e.polls.Load()
}

// Run starts the single-writer refresh loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// A failed refresh is logged and the loop continues; the affected views
// stay stale and are refetched by the next query or refresh.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", zap.String("property_id", e.propertyID))

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Close; an empty closed
			// queue ends the loop.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop cancels any pending debounced refresh, releases the change feed and
// closes the queue, which makes Run return once it is drained.
func (e *Engine) Stop() {
	e.debouncer.Stop()
	e.StopFeed()
	e.queue.Close()
}

// processEvent executes one queued event.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) processEvent(ctx context.Context, ev Event) {
	var err error
	switch ev.Type {
	case EventTypeRefresh:
		err = e.refresh(ctx)
		e.refreshes.Add(1)
	case EventTypePoll:
		err = e.refresh(ctx)
		e.polls.Add(1)
	case EventTypeSync:
	default:
		err = fmt.Errorf("unknown event type: %d", ev.Type)
	}
	if err != nil {
		e.logger.Error("event processing failed", zap.Stringer("type", ev.Type), zap.Error(err))
	}
	if ev.Done != nil {
		ev.Done <- err
	}
}

// refresh marks every view stale in one pass, then refetches each one.
func (e *Engine) refresh(ctx context.Context) error {
	stale := e.index.Invalidate(cache.AllKinds...)
	e.mu.Lock()
	e.roomsOK = false
	e.mu.Unlock()

	var errs []error
	for _, key := range e.index.Keys() {
		v, ok := e.index.Get(key)
		if !ok || !v.Stale {
			continue
		}
		stays, err := e.store.FetchStays(ctx, v.Filter)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		e.index.Put(key, v.Filter, stays)
	}

	e.logger.Debug("refreshed views", zap.Int("views", stale), zap.Int("failed", len(errs)))
	if len(errs) > 0 {
		return &RuntimeError{
			Code:    ErrCodeRefreshFailed,
			Op:      "refresh",
			Message: fmt.Sprintf("%d of %d views not refreshed", len(errs), stale),
			Err:     errors.Join(errs...),
		}
	}
	return nil
}

// Rooms returns the property's rooms, fetching them after a refresh.
func (e *Engine) Rooms(ctx context.Context) ([]domain.Room, error) {
	e.mu.Lock()
	if e.roomsOK {
		rooms := slices.Clone(e.rooms)
		e.mu.Unlock()
		return rooms, nil
	}
	e.mu.Unlock()

	rooms, err := e.store.FetchRooms(ctx, domain.RoomFilter{PropertyID: e.propertyID})
	if err != nil {
		return nil, NewFetchError("rooms", "", err)
	}

	e.mu.Lock()
	e.rooms = slices.Clone(rooms)
	e.roomsOK = true
	e.mu.Unlock()
	return rooms, nil
}

// view returns the stays of a cached view, fetching it when missing or
// stale.
func (e *Engine) view(ctx context.Context, op string, key cache.Key, filter domain.StayFilter) ([]domain.Stay, error) {
	if v, ok := e.index.Get(key); ok && !v.Stale {
		return v.Stays, nil
	}
	stays, err := e.store.FetchStays(ctx, filter)
	if err != nil {
		return nil, NewFetchError(op, key.String(), err)
	}
	e.index.Put(key, filter, stays)
	return stays, nil
}

// Grid builds the occupancy grid for window.
func (e *Engine) Grid(ctx context.Context, window calendar.Window) (calendar.Grid, error) {
	if window.Len() == 0 {
		return calendar.Grid{}, NewInvalidQueryError("grid", calendar.ErrInvalidWindow)
	}
	r := window.Range()
	rooms, err := e.Rooms(ctx)
	if err != nil {
		return calendar.Grid{}, err
	}
	stays, err := e.view(ctx, "grid",
		cache.NewKey(cache.KindStays, e.propertyID, r.String()),
		domain.StayFilter{PropertyID: e.propertyID, Window: &r},
	)
	if err != nil {
		return calendar.Grid{}, err
	}
	return calendar.Build(rooms, stays, window, calendar.WithLogger(e.logger)), nil
}

// Availability reports, for each room (all rooms when roomIDs is empty),
// whether it is free for [start, end).
func (e *Engine) Availability(ctx context.Context, start, end domain.Date, roomIDs ...string) ([]availability.RoomAvailability, error) {
	if !end.After(start) {
		return nil, NewInvalidQueryError("availability",
			fmt.Errorf("%w: %s..%s", availability.ErrInvalidRange, start, end))
	}
	rooms, err := e.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	roomSet := slices.Clone(roomIDs)
	slices.Sort(roomSet)
	roomSet = slices.Compact(roomSet)
	if len(roomSet) > 0 {
		f := domain.RoomFilter{IDs: roomSet}
		rooms = slices.DeleteFunc(rooms, func(r domain.Room) bool { return !f.Matches(r) })
	}

	r := domain.NewRange(start, end)
	stays, err := e.view(ctx, "availability",
		cache.NewKey(cache.KindAvailability, e.propertyID, r.String(), strings.Join(roomSet, ",")),
		domain.StayFilter{PropertyID: e.propertyID, Window: &r, RoomIDs: roomSet},
	)
	if err != nil {
		return nil, err
	}
	return availability.Availability(rooms, stays, start, end)
}

// Stats aggregates the stays overlapping start..end. A zero-length period
// is the single day start.
func (e *Engine) Stats(ctx context.Context, start, end domain.Date) (availability.Stats, error) {
	if end.Before(start) {
		return availability.Stats{}, NewInvalidQueryError("stats",
			fmt.Errorf("%w: %s..%s", availability.ErrInvalidRange, start, end))
	}
	fetchEnd := end
	if fetchEnd == start {
		fetchEnd = start.AddDays(1)
	}
	r := domain.NewRange(start, fetchEnd)
	stays, err := e.view(ctx, "stats",
		cache.NewKey(cache.KindStats, e.propertyID, r.String()),
		domain.StayFilter{PropertyID: e.propertyID, Window: &r},
	)
	if err != nil {
		return availability.Stats{}, err
	}
	return availability.Compute(stays, start, end)
}

// ProposeMove runs the reschedule protocol for stayID. A stay not present
// in any cached view is loaded first so it can be patched and rolled back
// like any other.
func (e *Engine) ProposeMove(ctx context.Context, stayID string, src, dst schedule.Cell, opts ...schedule.MoveOption) (schedule.Outcome, error) {
	if src != dst || len(opts) > 0 {
		if _, ok := e.index.Lookup(stayID); !ok {
			filter := domain.StayFilter{PropertyID: e.propertyID, IDs: []string{stayID}}
			key := cache.NewKey(cache.KindStays, e.propertyID, "stay", stayID)
			if _, err := e.view(ctx, "move", key, filter); err != nil {
				return "", err
			}
		}
	}
	return e.protocol.ProposeMove(ctx, stayID, src, dst, opts...)
}

// PendingMoves returns the moves waiting for the store.
func (e *Engine) PendingMoves() []schedule.PendingMove {
	return e.protocol.Pending()
}

// OnConnectionChange registers fn for change feed state transitions. It
// applies to the current listener and to any started later.
func (e *Engine) OnConnectionChange(fn func(from, to feed.State)) {
	e.mu.Lock()
	e.watchers = append(e.watchers, fn)
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l.OnStateChange(fn)
	}
}

// StartFeed follows remote changes from src. Any previous feed is stopped
// first. Each change adds a notification and requests a debounced
// refresh; while connected or in error the fallback poll forces a refresh
// every poll interval.
func (e *Engine) StartFeed(ctx context.Context, src feed.Source, opts ...feed.ListenerOption) error {
	e.StopFeed()

	base := []feed.ListenerOption{
		feed.WithFilter(domain.ChangeFilter{PropertyID: e.propertyID}),
		feed.WithNotifications(e.center),
		feed.WithRefresh(e.debouncer.Request),
		feed.WithPoll(func() { e.enqueue(EventTypePoll) }),
		feed.WithClock(e.clock),
		feed.WithPollInterval(e.pollInterval),
		feed.WithLogger(e.logger),
	}
	l := feed.NewListener(src, append(base, opts...)...)

	e.mu.Lock()
	e.listener = l
	watchers := slices.Clone(e.watchers)
	e.mu.Unlock()

	l.OnStateChange(func(from, to feed.State) {
		e.logger.Info("change feed state", zap.String("from", string(from)), zap.String("to", string(to)))
	})
	for _, fn := range watchers {
		l.OnStateChange(fn)
	}
	return l.Start(ctx)
}

// Resubscribe restarts the current feed after it ended or failed.
func (e *Engine) Resubscribe(ctx context.Context) error {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return errors.New("resubscribe: change feed not started")
	}
	return l.Start(ctx)
}

// StopFeed releases the change feed subscriptions, if any.
func (e *Engine) StopFeed() {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l.Stop()
	}
}

// FeedEvents returns how many change events the current feed handled.
func (e *Engine) FeedEvents() uint64 {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return 0
	}
	return l.Events()
}

// ConnectionState returns the change feed state; disconnected before
// StartFeed.
func (e *Engine) ConnectionState() feed.State {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return feed.StateDisconnected
	}
	return l.State()
}

// FeedErr returns the error that put the feed in the error state, if any.
func (e *Engine) FeedErr() error {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Err()
}
