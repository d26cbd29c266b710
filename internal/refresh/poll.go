package refresh

import (
	"sync"
	"time"

	"github.com/bagoessprasetyo/property-management-sub000/internal/clock"
)

// DefaultPollInterval is the default fallback poll period.
const DefaultPollInterval = 30 * time.Second

// Poller calls a function every interval while active reports true.
// Ticks where active is false are skipped, not queued.
type Poller struct {
	clock    clock.Clock
	interval time.Duration
	active   func() bool
	poll     func()

	mu      sync.Mutex
	timer   clock.Timer
	running bool
}

// NewPoller creates a stopped poller.
func NewPoller(c clock.Clock, interval time.Duration, active func() bool, poll func()) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if active == nil {
		active = func() bool { return true }
	}
	return &Poller{clock: c, interval: interval, active: active, poll: poll}
}

// Start arms the first tick. Starting a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.timer = p.clock.AfterFunc(p.interval, p.tick)
}

func (p *Poller) tick() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.timer = p.clock.AfterFunc(p.interval, p.tick)
	p.mu.Unlock()

	if p.active() {
		p.poll()
	}
}

// Stop cancels the next tick.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Interval returns the poll period.
func (p *Poller) Interval() time.Duration { return p.interval }
