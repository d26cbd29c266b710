// Package notify keeps the capped, newest-first notification list shown to
// users, with its read state.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/bagoessprasetyo/property-management-sub000/internal/clock"
	"github.com/bagoessprasetyo/property-management-sub000/internal/ids"
)

// DefaultCapacity is how many notifications are kept.
const DefaultCapacity = 50

// Category classifies a notification.
type Category string

const (
	CategoryCreated       Category = "created"
	CategoryUpdated       Category = "updated"
	CategoryCancelled     Category = "cancelled"
	CategoryStatusChanged Category = "status_changed"
	CategoryRoomStatus    Category = "room_status"
)

// Notification is one user-facing entry.
type Notification struct {
	ID        string         `json:"id"`
	Category  Category       `json:"category"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read"`
}

// Draft is the caller-supplied part of a notification.
type Draft struct {
	Category Category
	Title    string
	Message  string
	Payload  map[string]any
}

// Center owns one notification list.
//
// Thread-safety: all methods are safe for concurrent use. Subscribers are
// called after the lock is released, in subscription order.
type Center struct {
	clock    clock.Clock
	ids      ids.Generator
	capacity int

	mu     sync.Mutex
	items  []Notification // newest first
	nextID int
	subs   map[int]func([]Notification)
}

// Option configures a Center.
type Option func(*Center)

// WithClock sets the time source for CreatedAt.
func WithClock(c clock.Clock) Option {
	return func(n *Center) { n.clock = c }
}

// WithIDs sets the id generator.
func WithIDs(g ids.Generator) Option {
	return func(n *Center) { n.ids = g }
}

// WithCapacity overrides DefaultCapacity. Non-positive values are ignored.
func WithCapacity(capacity int) Option {
	return func(n *Center) {
		if capacity > 0 {
			n.capacity = capacity
		}
	}
}

// NewCenter creates an empty list.
func NewCenter(opts ...Option) *Center {
	n := &Center{
		clock:    clock.Real{},
		ids:      ids.UUIDv7{},
		capacity: DefaultCapacity,
		subs:     make(map[int]func([]Notification)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Add prepends a notification and drops the oldest beyond capacity.
func (n *Center) Add(d Draft) Notification {
	note := Notification{
		ID:        n.ids.Generate(),
		Category:  d.Category,
		Title:     d.Title,
		Message:   d.Message,
		Payload:   d.Payload,
		CreatedAt: n.clock.Now(),
	}

	n.mu.Lock()
	items := make([]Notification, 0, min(len(n.items)+1, n.capacity))
	items = append(items, note)
	items = append(items, n.items[:min(len(n.items), n.capacity-1)]...)
	n.items = items
	n.mu.Unlock()

	n.notify()
	return note
}

// List returns a copy of the list, newest first.
func (n *Center) List() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.items))
	copy(out, n.items)
	return out
}

// Len returns the number of notifications held.
func (n *Center) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

// UnreadCount returns how many notifications are unread.
func (n *Center) UnreadCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, it := range n.items {
		if !it.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one notification read. It reports whether id was found;
// subscribers are called only when the notification was unread.
func (n *Center) MarkRead(id string) bool {
	n.mu.Lock()
	found, changed := false, false
	for i := range n.items {
		if n.items[i].ID == id {
			found, changed = true, !n.items[i].Read
			n.items[i].Read = true
			break
		}
	}
	n.mu.Unlock()

	if changed {
		n.notify()
	}
	return found
}

// MarkAllRead marks every notification read.
func (n *Center) MarkAllRead() {
	n.mu.Lock()
	for i := range n.items {
		n.items[i].Read = true
	}
	n.mu.Unlock()
	n.notify()
}

// Clear empties the list.
func (n *Center) Clear() {
	n.mu.Lock()
	n.items = nil
	n.mu.Unlock()
	n.notify()
}

// Subscribe registers fn to receive the list after every change. The
// returned function unsubscribes.
func (n *Center) Subscribe(fn func([]Notification)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *Center) notify() {
	n.mu.Lock()
	if len(n.subs) == 0 {
		n.mu.Unlock()
		return
	}
	keys := make([]int, 0, len(n.subs))
	for k := range n.subs {
		keys = append(keys, k)
	}
	fns := make([]func([]Notification), 0, len(keys))
	slices.Sort(keys)
	for _, k := range keys {
		fns = append(fns, n.subs[k])
	}
	snapshot := make([]Notification, len(n.items))
	copy(snapshot, n.items)
	n.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
