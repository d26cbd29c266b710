package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/clock"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/notify"
	"github.com/bagoessprasetyo/property-management-sub000/internal/refresh"
)

// State is the listener's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var (
	// ErrAlreadyStarted is returned by Start while subscriptions are live.
	ErrAlreadyStarted = errors.New("feed: listener already started")
	// ErrStopped is returned by a Start that raced with Stop.
	ErrStopped = errors.New("feed: listener stopped")
)

// Listener turns remote changes into notifications and refresh requests.
//
// State machine: disconnected → connecting (Start) → connected (both
// subscriptions acknowledged). A subscription ending cleanly moves to
// disconnected; one ending with an error moves to error. Either way both
// subscriptions are released. The listener never resubscribes on its own;
// callers call Start again.
//
// While connected or in error, the fallback poll forces a refresh every
// poll interval.
//
// Thread-safety: all methods are safe for concurrent use.
type Listener struct {
	source  Source
	filter  domain.ChangeFilter
	center  *notify.Center
	refresh func()
	poll    func()
	logger  *zap.Logger
	poller  *refresh.Poller

	clock        clock.Clock
	pollInterval time.Duration

	mu       sync.Mutex
	state    State
	lastErr  error
	gen      uint64
	subs     []Subscription
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	handlers []func(from, to State)
	events   uint64
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithFilter scopes both subscriptions.
func WithFilter(f domain.ChangeFilter) ListenerOption {
	return func(l *Listener) { l.filter = f }
}

// WithNotifications sets the notification list events are added to.
func WithNotifications(c *notify.Center) ListenerOption {
	return func(l *Listener) { l.center = c }
}

// WithRefresh sets the debounced refresh request made for every event.
func WithRefresh(f func()) ListenerOption {
	return func(l *Listener) { l.refresh = f }
}

// WithPoll sets the forced refresh run by the fallback poll.
func WithPoll(f func()) ListenerOption {
	return func(l *Listener) { l.poll = f }
}

// WithClock sets the time source of the fallback poll.
func WithClock(c clock.Clock) ListenerOption {
	return func(l *Listener) { l.clock = c }
}

// WithPollInterval sets the fallback poll period.
func WithPollInterval(d time.Duration) ListenerOption {
	return func(l *Listener) { l.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewListener creates a disconnected listener on source.
func NewListener(source Source, opts ...ListenerOption) *Listener {
	l := &Listener{
		source:       source,
		center:       notify.NewCenter(),
		refresh:      func() {},
		poll:         func() {},
		logger:       zap.NewNop(),
		clock:        clock.Real{},
		pollInterval: refresh.DefaultPollInterval,
		state:        StateDisconnected,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.poller = refresh.NewPoller(l.clock, l.pollInterval, l.polling, func() {
		l.logger.Debug("fallback poll")
		l.poll()
	})
	return l
}

// Notifications returns the list events are added to.
func (l *Listener) Notifications() *notify.Center { return l.center }

// State returns the current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the error that moved the listener to StateError, if any.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Events returns how many change events were handled. An event is
// counted once its notification and refresh request are done.
func (l *Listener) Events() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// OnStateChange registers fn to be called after every transition.
func (l *Listener) OnStateChange(fn func(from, to State)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, fn)
}

func (l *Listener) polling() bool {
	s := l.State()
	return s == StateConnected || s == StateError
}

// Start subscribes to stay and room changes. It returns after both
// subscriptions are acknowledged, or with the subscribe error (state
// error, nothing left subscribed). ctx bounds the subscribe calls only;
// the subscriptions live until Stop or until the source ends them.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateConnecting || l.state == StateConnected {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.transition(gen, StateConnecting, nil)
	l.poller.Start()

	stays, err := l.source.Subscribe(ctx, domain.EntityStay, l.filter)
	if err != nil {
		l.transition(gen, StateError, fmt.Errorf("subscribe stays: %w", err))
		return err
	}
	rooms, err := l.source.Subscribe(ctx, domain.EntityRoom, l.filter)
	if err != nil {
		_ = stays.Close()
		l.transition(gen, StateError, fmt.Errorf("subscribe rooms: %w", err))
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.mu.Lock()
	if gen != l.gen {
		// Stopped while subscribing.
		l.mu.Unlock()
		cancel()
		_ = stays.Close()
		_ = rooms.Close()
		return ErrStopped
	}
	l.subs = []Subscription{stays, rooms}
	l.cancel = cancel
	l.wg.Add(2)
	l.mu.Unlock()

	go l.consume(runCtx, gen, domain.EntityStay, stays)
	go l.consume(runCtx, gen, domain.EntityRoom, rooms)

	l.transition(gen, StateConnected, nil)
	l.logger.Info("change feed connected")
	return nil
}

func (l *Listener) consume(ctx context.Context, gen uint64, kind domain.EntityKind, sub Subscription) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				l.ended(gen, kind, sub.Err())
				return
			}
			l.handle(e)
		}
	}
}

func (l *Listener) handle(e domain.ChangeEvent) {
	if draft, ok := Describe(e); ok {
		l.center.Add(draft)
	}
	l.logger.Debug("change received",
		zap.String("entity", string(e.Entity)),
		zap.String("op", string(e.Op)),
		zap.String("stay_id", e.StayID()),
		zap.String("room_id", e.RoomID()),
	)
	l.refresh()

	l.mu.Lock()
	l.events++
	l.mu.Unlock()
}

// ended handles one subscription finishing on its own.
func (l *Listener) ended(gen uint64, kind domain.EntityKind, err error) {
	l.mu.Lock()
	if gen != l.gen || l.state != StateConnected {
		l.mu.Unlock()
		return
	}
	subs := l.subs
	l.subs = nil
	cancel := l.cancel
	l.mu.Unlock()

	// The sibling goroutine exits through cancel; wg is not awaited here
	// because this goroutine is one of the two it counts.
	cancel()
	for _, s := range subs {
		_ = s.Close()
	}

	if err != nil {
		l.logger.Warn("change feed subscription failed", zap.String("entity", string(kind)), zap.Error(err))
		l.transition(gen, StateError, err)
		return
	}
	l.logger.Info("change feed subscription closed", zap.String("entity", string(kind)))
	l.transition(gen, StateDisconnected, nil)
}

// Stop releases both subscriptions and the fallback poll.
func (l *Listener) Stop() {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	subs := l.subs
	l.subs = nil
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	l.poller.Stop()
	if cancel != nil {
		cancel()
	}
	for _, s := range subs {
		if err := s.Close(); err != nil {
			l.logger.Warn("closing subscription", zap.Error(err))
		}
	}
	l.wg.Wait()
	l.transition(gen, StateDisconnected, nil)
}

func (l *Listener) transition(gen uint64, to State, err error) {
	l.mu.Lock()
	if gen != l.gen || l.state == to {
		l.mu.Unlock()
		return
	}
	from := l.state
	l.state = to
	if to == StateError {
		l.lastErr = err
	} else if to == StateConnected {
		l.lastErr = nil
	}
	handlers := make([]func(from, to State), len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, h := range handlers {
		h(from, to)
	}
}
