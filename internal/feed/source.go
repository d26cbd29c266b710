package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// ErrClosed is returned when subscribing to a closed source.
var ErrClosed = errors.New("feed: source closed")

// Source opens change subscriptions. Subscribe returns once the
// subscription is acknowledged.
type Source interface {
	Subscribe(ctx context.Context, kind domain.EntityKind, filter domain.ChangeFilter) (Subscription, error)
}

// Subscription is one live change stream.
//
// Events is closed when the subscription ends; Err then reports why (nil
// after Close or a clean shutdown of the source).
type Subscription interface {
	Events() <-chan domain.ChangeEvent
	Err() error
	Close() error
}

// Publisher receives change events from a writer such as the store.
type Publisher interface {
	Publish(e domain.ChangeEvent)
}

// DefaultBuffer is the per-subscription event buffer of a Broker.
const DefaultBuffer = 256

// Broker is an in-process Source. Publish fans events out to matching
// subscriptions without blocking: a subscriber whose buffer is full is
// dropped with ErrSlowSubscriber.
//
// Thread-safety: all methods are safe for concurrent use.
type Broker struct {
	mu     sync.Mutex
	subs   map[*brokerSub]struct{}
	buffer int
	closed bool
}

// ErrSlowSubscriber ends a broker subscription that fell behind.
var ErrSlowSubscriber = errors.New("feed: subscriber too slow, events dropped")

// NewBroker creates a broker. buffer <= 0 uses DefaultBuffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[*brokerSub]struct{}), buffer: buffer}
}

// Subscribe implements Source.
func (b *Broker) Subscribe(ctx context.Context, kind domain.EntityKind, filter domain.ChangeFilter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &brokerSub{
		broker: b,
		kind:   kind,
		filter: filter,
		events: make(chan domain.ChangeEvent, b.buffer),
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// Publish implements Publisher.
func (b *Broker) Publish(e domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		if s.kind != e.Entity || !s.filter.Matches(e) {
			continue
		}
		select {
		case s.events <- e:
		default:
			s.endLocked(ErrSlowSubscriber)
		}
	}
}

// Fail ends every subscription with err, as a transport failure would.
func (b *Broker) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.endLocked(err)
	}
}

// Close ends every subscription cleanly and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		s.endLocked(nil)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type brokerSub struct {
	broker *Broker
	kind   domain.EntityKind
	filter domain.ChangeFilter
	events chan domain.ChangeEvent
	err    error
	ended  bool
}

func (s *brokerSub) Events() <-chan domain.ChangeEvent { return s.events }

func (s *brokerSub) Err() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.err
}

func (s *brokerSub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.endLocked(nil)
	return nil
}

// endLocked closes the stream once. Caller holds broker.mu.
func (s *brokerSub) endLocked(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.events)
	delete(s.broker.subs, s)
}
