package cache

import (
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// Kind is a namespace of cached views.
type Kind string

const (
	// KindStays holds stay lists behind grid views.
	KindStays Kind = "stays"
	// KindAvailability holds stay lists behind availability queries.
	KindAvailability Kind = "availability"
	// KindStats holds stay lists behind stats queries.
	KindStats Kind = "stats"
)

// AllKinds is every kind a refresh invalidates.
var AllKinds = []Kind{KindStays, KindAvailability, KindStats}

// Key identifies one cached view.
type Key struct {
	Kind Kind
	Name string
}

// NewKey builds a key from a kind and the parts that distinguish the query
// (property, window, room set).
func NewKey(kind Kind, parts ...string) Key {
	return Key{Kind: kind, Name: strings.Join(parts, "|")}
}

func (k Key) String() string { return string(k.Kind) + ":" + k.Name }

// View is a read-only copy of one cached entry.
type View struct {
	Key     Key
	Filter  domain.StayFilter
	Stays   []domain.Stay
	Version uint64
	// Stale views are still served but must be refetched.
	Stale bool
}

type entry struct {
	filter  domain.StayFilter
	stays   []domain.Stay
	pos     map[string]int
	version uint64
	stale   bool
}

func (e *entry) reindex() {
	e.pos = make(map[string]int, len(e.stays))
	for i, s := range e.stays {
		e.pos[s.ID] = i
	}
}

// Index is the stay-id → cached-view index.
//
// Thread-safety: all methods are safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	byStay  map[string]map[Key]struct{}
	// byBucket lists the views a stay outside them could enter, keyed by
	// the filter's id set or property.
	byBucket      map[string]map[Key]struct{}
	seq           uint64
	invalidations uint64
	logger        *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// New creates an empty index.
func New(opts ...Option) *Index {
	ix := &Index{
		entries:  make(map[Key]*entry),
		byStay:   make(map[string]map[Key]struct{}),
		byBucket: make(map[string]map[Key]struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Put stores a freshly fetched view, replacing any previous one, and
// returns its version. The stays slice is copied.
func (ix *Index) Put(key Key, filter domain.StayFilter, stays []domain.Stay) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.entries[key]; ok {
		ix.unlink(key, old)
		for _, b := range buckets(old.filter) {
			removeKey(ix.byBucket, b, key)
		}
	}
	e := &entry{filter: filter, stays: slices.Clone(stays)}
	ix.seq++
	e.version = ix.seq
	e.reindex()
	ix.entries[key] = e
	ix.link(key, e)
	for _, b := range buckets(filter) {
		addKey(ix.byBucket, b, key)
	}
	return e.version
}

// Get returns a copy of the view for key.
func (ix *Index) Get(key Key) (View, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.entries[key]
	if !ok {
		return View{}, false
	}
	return View{
		Key:     key,
		Filter:  e.filter,
		Stays:   slices.Clone(e.stays),
		Version: e.version,
		Stale:   e.stale,
	}, true
}

// Keys returns every cached key, sorted.
func (ix *Index) Keys() []Key {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := make([]Key, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int { return strings.Compare(a.String(), b.String()) })
	return keys
}

// Lookup returns the cached record for stayID from the most recently
// written view holding it.
func (ix *Index) Lookup(stayID string) (domain.Stay, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var latest *entry
	for key := range ix.byStay[stayID] {
		if e := ix.entries[key]; latest == nil || e.version > latest.version {
			latest = e
		}
	}
	if latest == nil {
		return domain.Stay{}, false
	}
	return latest.stays[latest.pos[stayID]], true
}

// Views returns the keys of every view currently holding stayID.
func (ix *Index) Views(stayID string) []Key {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := make([]Key, 0, len(ix.byStay[stayID]))
	for k := range ix.byStay[stayID] {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int { return strings.Compare(a.String(), b.String()) })
	return keys
}

// Token records what one Patch changed, per view: the stay's prior record
// and whether the view held it.
type Token struct {
	stayID string
	marks  map[Key]mark
}

type mark struct {
	entry *entry // replaced by Put after a refetch
	prior domain.Stay
	held  bool
	pos   int
}

// StayID returns the patched stay id.
func (t Token) StayID() string { return t.stayID }

// Keys returns the patched views, sorted.
func (t Token) Keys() []Key {
	keys := make([]Key, 0, len(t.marks))
	for k := range t.marks {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int { return strings.Compare(a.String(), b.String()) })
	return keys
}

// Empty reports whether the patch touched no view.
func (t Token) Empty() bool { return len(t.marks) == 0 }

// Patch applies stay to every cached view as one atomic step.
//
// A view that holds the stay gets the new record in place, or loses it if
// the new record no longer matches the view's filter. A view that does not
// hold it gains it (appended) when the new record now matches. Views the
// stay neither leaves nor enters are untouched. Only views that hold the
// stay or whose filter bucket covers it are visited.
func (ix *Index) Patch(stay domain.Stay) Token {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tok := Token{stayID: stay.ID, marks: make(map[Key]mark)}
	for _, key := range ix.candidates(stay) {
		e := ix.entries[key]
		m := mark{entry: e}
		if i, held := e.pos[stay.ID]; held {
			m.held, m.pos, m.prior = true, i, e.stays[i]
		}
		if ix.apply(key, e, stay) {
			tok.marks[key] = m
		}
	}
	ix.logger.Debug("optimistic patch applied",
		zap.String("stay_id", stay.ID),
		zap.Int("views", len(tok.marks)),
	)
	return tok
}

// Install writes the store's authoritative record into every view, the
// same way Patch does, without recording prior state.
func (ix *Index) Install(stay domain.Stay) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n := 0
	for _, key := range ix.candidates(stay) {
		if ix.apply(key, ix.entries[key], stay) {
			n++
		}
	}
	return n
}

// Remove drops stayID from every view.
func (ix *Index) Remove(stayID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n := 0
	for key := range ix.byStay[stayID] {
		e := ix.entries[key]
		i := e.pos[stayID]
		e.stays = slices.Delete(e.stays, i, i+1)
		e.reindex()
		ix.seq++
		e.version = ix.seq
		n++
	}
	delete(ix.byStay, stayID)
	return n
}

// Rollback undoes tok's stay in every view it patched, as one atomic step,
// and returns how many views it restored. Only the patched stay's entry is
// written back: the prior record replaces the current one, is re-inserted
// at its old position if the patch removed it, or is dropped if the patch
// added it. Other stays' changes since the patch are kept. A view replaced
// by Put since the patch already holds fetched data and is skipped.
func (ix *Index) Rollback(tok Token) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	restored := 0
	for key, m := range tok.marks {
		e, ok := ix.entries[key]
		if !ok || e != m.entry {
			ix.logger.Debug("rollback skipped refetched view",
				zap.String("stay_id", tok.stayID),
				zap.String("view", key.String()),
			)
			continue
		}
		i, held := e.pos[tok.stayID]
		switch {
		case m.held && held:
			e.stays[i] = m.prior
		case m.held:
			e.stays = slices.Insert(e.stays, min(m.pos, len(e.stays)), m.prior)
			e.reindex()
			ix.linkStay(tok.stayID, key)
		case held:
			e.stays = slices.Delete(e.stays, i, i+1)
			e.reindex()
			ix.unlinkStay(tok.stayID, key)
		}
		ix.seq++
		e.version = ix.seq
		restored++
	}
	return restored
}

// Invalidate marks every view of the given kinds stale in one pass and
// returns how many views it marked. With no kinds, every view is marked.
func (ix *Index) Invalidate(kinds ...Kind) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n := 0
	for key, e := range ix.entries {
		if len(kinds) > 0 && !slices.Contains(kinds, key.Kind) {
			continue
		}
		e.stale = true
		n++
	}
	ix.invalidations++
	return n
}

// Invalidations returns how many Invalidate batches have run.
func (ix *Index) Invalidations() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.invalidations
}

// Len returns the number of cached views.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// candidates returns the views stay could touch: those holding it and
// those whose bucket covers it. Caller holds mu.
func (ix *Index) candidates(stay domain.Stay) []Key {
	seen := make(map[Key]struct{}, len(ix.byStay[stay.ID]))
	var keys []Key
	add := func(set map[Key]struct{}) {
		for k := range set {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	add(ix.byStay[stay.ID])
	add(ix.byBucket["id:"+stay.ID])
	add(ix.byBucket["property:"+stay.PropertyID])
	if stay.PropertyID != "" {
		add(ix.byBucket["property:"])
	}
	return keys
}

// buckets names where a view with filter f is listed. A view restricted to
// stay ids is listed under each id, any other under its property ("" for
// every property).
func buckets(f domain.StayFilter) []string {
	if len(f.IDs) > 0 {
		out := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			out[i] = "id:" + id
		}
		return out
	}
	return []string{"property:" + f.PropertyID}
}

// apply writes stay into e. It reports whether e changed. Caller holds mu.
func (ix *Index) apply(key Key, e *entry, stay domain.Stay) bool {
	i, held := e.pos[stay.ID]
	member := e.filter.Matches(stay)

	switch {
	case held && member:
		e.stays[i] = stay
	case held && !member:
		e.stays = slices.Delete(e.stays, i, i+1)
		e.reindex()
		ix.unlinkStay(stay.ID, key)
	case !held && member:
		e.stays = append(e.stays, stay)
		e.pos[stay.ID] = len(e.stays) - 1
		ix.linkStay(stay.ID, key)
	default:
		return false
	}
	ix.seq++
	e.version = ix.seq
	return true
}

func (ix *Index) link(key Key, e *entry) {
	for _, s := range e.stays {
		ix.linkStay(s.ID, key)
	}
}

func (ix *Index) unlink(key Key, e *entry) {
	for _, s := range e.stays {
		ix.unlinkStay(s.ID, key)
	}
}

func (ix *Index) linkStay(stayID string, key Key) { addKey(ix.byStay, stayID, key) }

func (ix *Index) unlinkStay(stayID string, key Key) { removeKey(ix.byStay, stayID, key) }

func addKey(m map[string]map[Key]struct{}, name string, key Key) {
	keys, ok := m[name]
	if !ok {
		keys = make(map[Key]struct{})
		m[name] = keys
	}
	keys[key] = struct{}{}
}

func removeKey(m map[string]map[Key]struct{}, name string, key Key) {
	keys := m[name]
	delete(keys, key)
	if len(keys) == 0 {
		delete(m, name)
	}
}
