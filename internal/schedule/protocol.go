package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/cache"
	"github.com/bagoessprasetyo/property-management-sub000/internal/clock"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/ids"
)

// StayMutator is the store's update-by-id call.
type StayMutator interface {
	UpdateStay(ctx context.Context, id string, patch domain.StayPatch) (domain.Stay, error)
}

// Outcome is how a proposed move ended.
type Outcome string

const (
	OutcomeNoOp       Outcome = "no_op"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// PendingMove is an in-flight move and the snapshot it rolls back to.
type PendingMove struct {
	ID        string
	StayID    string
	RoomID    *string
	CheckIn   *domain.Date
	CheckOut  *domain.Date
	Prior     domain.Stay
	StartedAt time.Time
}

// Protocol runs optimistic moves against a cache index and a store.
//
// Thread-safety: ProposeMove may be called from any goroutine. Moves on
// different stays run concurrently; a move on a stay that already has one
// pending fails with ErrMoveInFlight.
type Protocol struct {
	index   *cache.Index
	store   StayMutator
	clock   clock.Clock
	ids     ids.Generator
	refresh func()
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]PendingMove
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithClock sets the time source for PendingMove.StartedAt.
func WithClock(c clock.Clock) Option {
	return func(p *Protocol) { p.clock = c }
}

// WithIDs sets the move id generator.
func WithIDs(g ids.Generator) Option {
	return func(p *Protocol) { p.ids = g }
}

// WithRefresh sets the callback that requests a reconciling refresh after
// a committed move. Typically a debouncer's Request.
func WithRefresh(f func()) Option {
	return func(p *Protocol) { p.refresh = f }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Protocol patching index and persisting through store.
func New(index *cache.Index, store StayMutator, opts ...Option) *Protocol {
	p := &Protocol{
		index:   index,
		store:   store,
		clock:   clock.Real{},
		ids:     ids.UUIDv7{},
		refresh: func() {},
		logger:  zap.NewNop(),
		pending: make(map[string]PendingMove),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MoveOption adjusts a single move.
type MoveOption func(*moveConfig)

type moveConfig struct {
	checkOut *domain.Date
}

// WithCheckOut sets an explicit check-out instead of preserving the night
// count.
func WithCheckOut(d domain.Date) MoveOption {
	return func(c *moveConfig) { c.checkOut = &d }
}

// ProposeMove moves stayID from src to dst.
//
// Identical cells are a no-op and never reach the store. Otherwise the
// derived record is visible in every cached view before the store call
// starts. The store call is not cancelled with ctx: once sent, the round
// trip completes so the stay is always released. On store failure every
// patched view is restored and a recoverable *MoveError is returned along
// with OutcomeRolledBack.
func (p *Protocol) ProposeMove(ctx context.Context, stayID string, src, dst Cell, opts ...MoveOption) (Outcome, error) {
	var cfg moveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if src == dst && cfg.checkOut == nil {
		return OutcomeNoOp, nil
	}

	current, ok := p.index.Lookup(stayID)
	if !ok {
		return "", &MoveError{Code: ErrCodeUnknownStay, StayID: stayID, Message: "stay is not loaded in any view"}
	}

	patch, next, err := Derive(current, src, dst, cfg.checkOut)
	if err != nil {
		return "", err
	}
	if patch.Empty() {
		return OutcomeNoOp, nil
	}

	move, err := p.begin(current, patch)
	if err != nil {
		return "", err
	}
	defer p.release(stayID)

	log := p.logger.With(
		zap.String("move_id", move.ID),
		zap.String("stay_id", stayID),
		zap.String("from", src.String()),
		zap.String("to", dst.String()),
	)

	tok := p.index.Patch(next)
	log.Debug("move applied optimistically", zap.Int("views", len(tok.Keys())))

	updated, err := p.store.UpdateStay(context.WithoutCancel(ctx), stayID, patch)
	if err != nil {
		restored := p.index.Rollback(tok)
		log.Warn("move rejected, rolled back", zap.Int("views", restored), zap.Error(err))
		return OutcomeRolledBack, &MoveError{
			Code:    ErrCodeMoveRejected,
			StayID:  stayID,
			MoveID:  move.ID,
			Message: "store rejected the move",
			Err:     err,
		}
	}

	p.index.Install(updated)
	log.Info("move committed", zap.Int64("version", updated.Version))
	p.refresh()
	return OutcomeCommitted, nil
}

func (p *Protocol) begin(prior domain.Stay, patch domain.StayPatch) (PendingMove, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if inflight, busy := p.pending[prior.ID]; busy {
		return PendingMove{}, &MoveError{
			Code:    ErrCodeMoveInFlight,
			StayID:  prior.ID,
			MoveID:  inflight.ID,
			Message: "another move on this stay has not finished",
		}
	}
	move := PendingMove{
		ID:        p.ids.Generate(),
		StayID:    prior.ID,
		RoomID:    patch.RoomID,
		CheckIn:   patch.CheckIn,
		CheckOut:  patch.CheckOut,
		Prior:     prior,
		StartedAt: p.clock.Now(),
	}
	p.pending[prior.ID] = move
	return move, nil
}

func (p *Protocol) release(stayID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, stayID)
}

// Pending returns the in-flight moves ordered by stay id.
func (p *Protocol) Pending() []PendingMove {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PendingMove, 0, len(p.pending))
	for _, m := range p.pending {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StayID < out[j].StayID })
	return out
}
