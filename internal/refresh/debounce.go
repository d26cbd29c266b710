package refresh

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/clock"
)

// DefaultWindow is the default quiet period.
const DefaultWindow = 500 * time.Millisecond

// Debouncer is a cancellable deferred task. Each Request re-arms the timer;
// the task fires once the window passes with no further request.
//
// Thread-safety: all methods are safe for concurrent use. The fire callback
// runs without the debouncer's lock held, on the clock's timer goroutine
// (or inside FakeClock.Advance).
type Debouncer struct {
	clock  clock.Clock
	window time.Duration
	fire   func()
	logger *zap.Logger

	mu       sync.Mutex
	timer    clock.Timer
	gen      uint64
	stopped  bool
	requests uint64
	fired    uint64
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// WithWindow sets the quiet period. Non-positive values keep the default.
func WithWindow(w time.Duration) Option {
	return func(d *Debouncer) {
		if w > 0 {
			d.window = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Debouncer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDebouncer creates a debouncer that calls fire.
func NewDebouncer(fire func(), opts ...Option) *Debouncer {
	d := &Debouncer{
		clock:  clock.Real{},
		window: DefaultWindow,
		fire:   fire,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Window returns the quiet period.
func (d *Debouncer) Window() time.Duration { return d.window }

// Request arms the timer, superseding any pending one.
func (d *Debouncer) Request() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.requests++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() { d.expire(gen) })
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.fired++
	d.mu.Unlock()

	d.logger.Debug("debounced refresh firing")
	d.fire()
}

// Flush fires a pending task now. It reports whether one was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	d.fired++
	d.mu.Unlock()

	d.fire()
	return true
}

// Cancel drops a pending task without firing. It reports whether one was
// pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

// Stop cancels any pending task and ignores later requests.
func (d *Debouncer) Stop() {
	d.Cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

// Pending reports whether a task is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stats returns how many requests were received and how many fires ran.
func (d *Debouncer) Stats() (requests, fired uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests, d.fired
}
