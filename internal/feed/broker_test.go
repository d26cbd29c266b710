package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

func stayEvent(op domain.Operation, old, new *domain.Stay) domain.ChangeEvent {
	return domain.ChangeEvent{Entity: domain.EntityStay, Op: op, OldStay: old, NewStay: new, At: testutil.Epoch}
}

func roomEvent(old, new domain.Room) domain.ChangeEvent {
	return domain.ChangeEvent{Entity: domain.EntityRoom, Op: domain.OpUpdate, OldRoom: &old, NewRoom: &new, At: testutil.Epoch}
}

func TestBroker_RoutesByKindAndFilter(t *testing.T) {
	b := NewBroker(4)
	ctx := context.Background()

	stays, err := b.Subscribe(ctx, domain.EntityStay, domain.ChangeFilter{PropertyID: "p1"})
	require.NoError(t, err)
	rooms, err := b.Subscribe(ctx, domain.EntityRoom, domain.ChangeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers())

	inScope := testutil.Stay("A", "R1", "2025-08-18", "2025-08-20")
	inScope.PropertyID = "p1"
	other := testutil.Stay("B", "R1", "2025-08-18", "2025-08-20")
	other.PropertyID = "p2"

	b.Publish(stayEvent(domain.OpInsert, nil, &other))
	b.Publish(stayEvent(domain.OpInsert, nil, &inScope))
	b.Publish(roomEvent(testutil.Room("R1"), testutil.Room("R1")))

	got := <-stays.Events()
	assert.Equal(t, "A", got.StayID())
	assert.Empty(t, stays.Events())

	r := <-rooms.Events()
	assert.Equal(t, "R1", r.RoomID())
}

func TestBroker_CloseAndFail(t *testing.T) {
	b := NewBroker(4)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, domain.EntityStay, domain.ChangeFilter{})
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
	assert.NoError(t, sub.Close(), "second close is a no-op")
	assert.Zero(t, b.Subscribers())

	sub, err = b.Subscribe(ctx, domain.EntityStay, domain.ChangeFilter{})
	require.NoError(t, err)
	boom := errors.New("connection reset")
	b.Fail(boom)
	_, open = <-sub.Events()
	assert.False(t, open)
	assert.ErrorIs(t, sub.Err(), boom)

	b.Close()
	_, err = b.Subscribe(ctx, domain.EntityStay, domain.ChangeFilter{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroker_SlowSubscriberDropped(t *testing.T) {
	b := NewBroker(1)
	sub, err := b.Subscribe(context.Background(), domain.EntityStay, domain.ChangeFilter{})
	require.NoError(t, err)

	s := testutil.Stay("A", "R1", "2025-08-18", "2025-08-20")
	b.Publish(stayEvent(domain.OpInsert, nil, &s))
	b.Publish(stayEvent(domain.OpUpdate, &s, &s))

	<-sub.Events()
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.ErrorIs(t, sub.Err(), ErrSlowSubscriber)
}
