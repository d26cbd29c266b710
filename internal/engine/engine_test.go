package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/availability"
	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/feed"
	"github.com/bagoessprasetyo/property-management-sub000/internal/notify"
	"github.com/bagoessprasetyo/property-management-sub000/internal/schedule"
	"github.com/bagoessprasetyo/property-management-sub000/internal/store"
	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

var d = testutil.D

// countingStore wraps a store and counts reads.
type countingStore struct {
	Store
	mu     sync.Mutex
	stays  int
	rooms  int
	failed error
}

func (c *countingStore) FetchStays(ctx context.Context, f domain.StayFilter) ([]domain.Stay, error) {
	c.mu.Lock()
	c.stays++
	err := c.failed
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Store.FetchStays(ctx, f)
}

func (c *countingStore) FetchRooms(ctx context.Context, f domain.RoomFilter) ([]domain.Room, error) {
	c.mu.Lock()
	c.rooms++
	c.mu.Unlock()
	return c.Store.FetchRooms(ctx, f)
}

func (c *countingStore) stayFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stays
}

func (c *countingStore) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = err
}

type fixture struct {
	clock  *testutil.FakeClock
	broker *feed.Broker
	db     *store.Store
	reads  *countingStore
	engine *Engine
}

func setupEngine(t *testing.T, stays ...domain.Stay) *fixture {
	t.Helper()
	f := &fixture{clock: testutil.NewFakeClock(), broker: feed.NewBroker(64)}

	db, err := store.Open(t.TempDir()+"/test.db", store.WithClock(f.clock), store.WithPublisher(f.broker))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f.db = db

	ctx := context.Background()
	for _, id := range []string{"R101", "R102"} {
		require.NoError(t, db.UpsertRoom(ctx, testutil.Room(id)))
	}
	for _, st := range stays {
		_, err := db.InsertStay(ctx, st)
		require.NoError(t, err)
	}

	f.reads = &countingStore{Store: db}
	f.engine = New(f.reads,
		WithClock(f.clock),
		WithIDs(testutil.NewSequentialIDs("e")),
	)
	t.Cleanup(f.engine.Stop)
	return f
}

// run starts the Run loop for the duration of the test.
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func week() calendar.Window { return calendar.WeekWindow(d("2025-08-18")) }

func TestEngine_GridScenario(t *testing.T) {
	f := setupEngine(t, testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"))

	g, err := f.engine.Grid(context.Background(), week())
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, g.StayIDs("R101", d("2025-08-18")))
	assert.True(t, g.Occupied("R101", d("2025-08-20")))
	assert.False(t, g.Occupied("R101", d("2025-08-21")), "check-out day is free")
	assert.False(t, g.Occupied("R102", d("2025-08-19")))
}

func TestEngine_GridServedFromCache(t *testing.T) {
	f := setupEngine(t, testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"))
	ctx := context.Background()

	_, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)
	_, err = f.engine.Grid(ctx, week())
	require.NoError(t, err)

	assert.Equal(t, 1, f.reads.stayFetches())
}

func TestEngine_FetchFailureReturnsNoGrid(t *testing.T) {
	f := setupEngine(t)
	boom := errors.New("store unreachable")
	f.reads.fail(boom)

	_, err := f.engine.Grid(context.Background(), week())
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
	assert.ErrorIs(t, err, boom)
}

func TestEngine_RefreshRefetchesCurrentData(t *testing.T) {
	f := setupEngine(t, testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"))
	f.run(t)
	ctx := context.Background()

	_, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)

	_, err = f.db.InsertStay(ctx, testutil.Stay("B", "R102", "2025-08-19", "2025-08-20"))
	require.NoError(t, err)

	g, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)
	assert.False(t, g.Occupied("R102", d("2025-08-19")), "cached view is served until refreshed")

	require.NoError(t, f.engine.Refresh(ctx))

	g, err = f.engine.Grid(ctx, week())
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, g.StayIDs("R102", d("2025-08-19")))
}

func TestEngine_MoveCommitScenario(t *testing.T) {
	f := setupEngine(t, testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"))
	ctx := context.Background()

	_, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)

	outcome, err := f.engine.ProposeMove(ctx, "A",
		schedule.Cell{RoomID: "R101", Date: d("2025-08-18")},
		schedule.Cell{RoomID: "R102", Date: d("2025-08-20")},
	)
	require.NoError(t, err)
	assert.Equal(t, schedule.OutcomeCommitted, outcome)

	g, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)
	assert.False(t, g.Occupied("R101", d("2025-08-18")))
	assert.Equal(t, []string{"A"}, g.StayIDs("R102", d("2025-08-20")))
	r, ok := g.Locate("A")
	require.True(t, ok)
	assert.Equal(t, domain.NewRange(d("2025-08-20"), d("2025-08-23")), r)

	stored, err := f.db.GetStay(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, f.engine.Debouncer().Pending(), "commit requests a reconciling refresh")
	assert.Empty(t, f.engine.PendingMoves())
}

func TestEngine_MoveRejectedRollsBack(t *testing.T) {
	f := setupEngine(t,
		testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"),
		testutil.Stay("B", "R102", "2025-08-21", "2025-08-22"),
	)
	ctx := context.Background()

	before, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)
	prior, ok := f.engine.Index().Lookup("A")
	require.True(t, ok)

	outcome, err := f.engine.ProposeMove(ctx, "A",
		schedule.Cell{RoomID: "R101", Date: d("2025-08-18")},
		schedule.Cell{RoomID: "R102", Date: d("2025-08-20")},
	)
	assert.Equal(t, schedule.OutcomeRolledBack, outcome)
	require.Error(t, err)
	assert.True(t, schedule.IsRecoverable(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	after, err := f.engine.Grid(ctx, week())
	require.NoError(t, err)
	restored, ok := f.engine.Index().Lookup("A")
	require.True(t, ok)
	assert.Equal(t, domain.MustFingerprint(prior), domain.MustFingerprint(restored))
	for _, day := range before.Dates() {
		for _, room := range []string{"R101", "R102"} {
			assert.Equal(t, before.StayIDs(room, day), after.StayIDs(room, day), "%s %s", room, day)
		}
	}
}

func TestEngine_MoveLoadsUncachedStay(t *testing.T) {
	f := setupEngine(t, testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"))

	outcome, err := f.engine.ProposeMove(context.Background(), "A",
		schedule.Cell{RoomID: "R101", Date: d("2025-08-18")},
		schedule.Cell{RoomID: "R101", Date: d("2025-08-25")},
	)
	require.NoError(t, err)
	assert.Equal(t, schedule.OutcomeCommitted, outcome)

	stored, err := f.db.GetStay(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, d("2025-08-25"), stored.CheckIn)
	assert.Equal(t, d("2025-08-28"), stored.CheckOut)
}

func TestEngine_MoveNoOpMakesNoStoreCall(t *testing.T) {
	f := setupEngine(t, testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"))
	cell := schedule.Cell{RoomID: "R101", Date: d("2025-08-18")}

	outcome, err := f.engine.ProposeMove(context.Background(), "A", cell, cell)
	require.NoError(t, err)
	assert.Equal(t, schedule.OutcomeNoOp, outcome)
	assert.Zero(t, f.reads.stayFetches())
}

func TestEngine_MoveUnknownStay(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.ProposeMove(context.Background(), "ghost",
		schedule.Cell{RoomID: "R101", Date: d("2025-08-18")},
		schedule.Cell{RoomID: "R102", Date: d("2025-08-18")},
	)
	assert.ErrorIs(t, err, schedule.ErrUnknownStay)
}

func TestEngine_Availability(t *testing.T) {
	f := setupEngine(t,
		testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"),
		testutil.WithStatus(testutil.Stay("X", "R102", "2025-08-18", "2025-08-21"), domain.StatusCancelled),
	)
	ctx := context.Background()

	got, err := f.engine.Availability(ctx, d("2025-08-19"), d("2025-08-20"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Available)
	assert.Equal(t, "A", got[0].Conflicts[0].ID)
	assert.True(t, got[1].Available, "cancelled stays never conflict")

	only, err := f.engine.Availability(ctx, d("2025-08-21"), d("2025-08-23"), "R101")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.True(t, only[0].Available, "check-out day is free")

	_, err = f.engine.Availability(ctx, d("2025-08-20"), d("2025-08-20"))
	assert.True(t, IsInvalidQuery(err))
	assert.ErrorIs(t, err, availability.ErrInvalidRange)
}

func TestEngine_Stats(t *testing.T) {
	f := setupEngine(t,
		testutil.Stay("A", "R101", "2025-08-18", "2025-08-21"),
		testutil.WithStatus(testutil.Stay("X", "R102", "2025-08-18", "2025-08-21"), domain.StatusCancelled),
	)
	ctx := context.Background()

	st, err := f.engine.Stats(ctx, d("2025-08-18"), d("2025-08-21"))
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, domain.Money(30000), st.Revenue)
	assert.Equal(t, 4, st.Guests)
	assert.Equal(t, 1, st.ByStatus[domain.StatusCancelled])
	assert.Equal(t, 3, st.OccupiedRoomNights)

	_, err = f.engine.Stats(ctx, d("2025-08-21"), d("2025-08-18"))
	assert.ErrorIs(t, err, availability.ErrInvalidRange)
}

func TestEngine_FeedBurstRefreshesOnce(t *testing.T) {
	f := setupEngine(t)
	f.run(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartFeed(ctx, f.broker))
	assert.Equal(t, feed.StateConnected, f.engine.ConnectionState())

	burst := []domain.Stay{
		testutil.Stay("A", "R101", "2025-09-01", "2025-09-02"),
		testutil.Stay("B", "R101", "2025-09-03", "2025-09-04"),
		testutil.Stay("C", "R101", "2025-09-05", "2025-09-06"),
	}
	start := f.clock.Now()
	for i, st := range burst {
		if i > 0 {
			f.clock.Advance(50 * time.Millisecond)
		}
		_, err := f.db.InsertStay(ctx, st)
		require.NoError(t, err)
		want := uint64(i + 1)
		require.Eventually(t, func() bool {
			requests, _ := f.engine.Debouncer().Stats()
			return requests == want
		}, time.Second, time.Millisecond)
	}

	f.clock.Advance(499 * time.Millisecond)
	_, fired := f.engine.Debouncer().Stats()
	assert.Zero(t, fired)

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, f.clock.Now().Sub(start))
	require.Eventually(t, func() bool {
		refreshes, _ := f.engine.Refreshes()
		return refreshes == 1
	}, time.Second, time.Millisecond)

	list := f.engine.Notifications().List()
	require.Len(t, list, 3)
	assert.Equal(t, notify.CategoryCreated, list[0].Category)
	assert.Contains(t, list[0].Message, "2025-09-05")
}

func TestEngine_FeedErrorKeepsPolling(t *testing.T) {
	f := setupEngine(t)
	f.run(t)
	ctx := context.Background()

	var mu sync.Mutex
	var transitions []feed.State
	f.engine.OnConnectionChange(func(_, to feed.State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, to)
	})
	require.NoError(t, f.engine.StartFeed(ctx, f.broker))

	f.broker.Fail(errors.New("connection reset"))
	require.Eventually(t, func() bool {
		return f.engine.ConnectionState() == feed.StateError
	}, time.Second, time.Millisecond)
	assert.EqualError(t, f.engine.FeedErr(), "connection reset")

	f.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		_, polls := f.engine.Refreshes()
		return polls == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, f.engine.Resubscribe(ctx))
	assert.Equal(t, feed.StateConnected, f.engine.ConnectionState())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []feed.State{
		feed.StateConnecting, feed.StateConnected, feed.StateError,
		feed.StateConnecting, feed.StateConnected,
	}, transitions)
}

func TestEngine_EnginesAreIndependent(t *testing.T) {
	f := setupEngine(t)
	other := New(f.reads, WithClock(f.clock), WithIDs(testutil.NewSequentialIDs("o")))
	t.Cleanup(other.Stop)
	ctx := context.Background()

	require.NoError(t, f.engine.StartFeed(ctx, f.broker))

	_, err := f.db.InsertStay(ctx, testutil.Stay("A", "R101", "2025-08-18", "2025-08-19"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.engine.Notifications().Len() == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, other.Notifications().Len())
	assert.Equal(t, feed.StateDisconnected, other.ConnectionState())
}

func TestEngine_RunStopsOnContext(t *testing.T) {
	f := setupEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.engine.Run(ctx)
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on context cancellation")
	}
}

func TestEngine_RunStopsOnStop(t *testing.T) {
	f := setupEngine(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.engine.Run(context.Background())
	}()
	f.engine.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}

	assert.ErrorIs(t, f.engine.Refresh(context.Background()), ErrStopped)
	assert.False(t, f.engine.Enqueue(Event{Type: EventTypeRefresh}))
}

func TestEngine_SyncWaitsForQueuedEvents(t *testing.T) {
	f := setupEngine(t)
	f.run(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartFeed(ctx, f.broker))
	assert.Zero(t, f.engine.FeedEvents())

	_, err := f.db.InsertStay(ctx, testutil.Stay("A", "R101", "2025-09-01", "2025-09-03"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.engine.FeedEvents() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, f.engine.Sync(ctx))
	assert.Len(t, f.engine.Notifications().List(), 1)
}

func TestEngine_SyncAfterStop(t *testing.T) {
	f := setupEngine(t)
	f.engine.Stop()
	assert.ErrorIs(t, f.engine.Sync(context.Background()), ErrStopped)
}
