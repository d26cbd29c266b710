package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	ok := q.Enqueue(Event{Type: EventTypeRefresh})
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, EventTypeRefresh, got.Type)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	q.Enqueue(Event{Type: EventTypePoll})
	q.Enqueue(Event{Type: EventTypeRefresh})
	q.Enqueue(Event{Type: EventTypePoll})

	for _, want := range []EventType{EventTypePoll, EventTypeRefresh, EventTypePoll} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Type)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_Enqueue_AfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()

	ok := q.Enqueue(Event{Type: EventTypeRefresh})
	assert.False(t, ok, "enqueue after close should return false")
	assert.True(t, q.Closed())
}

func TestEventQueue_Close_Idempotent(t *testing.T) {
	q := newEventQueue()
	q.Close()
	assert.NotPanics(t, q.Close)

	_, open := <-q.Wait()
	assert.False(t, open, "Wait channel should be closed")
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(Event{Type: EventTypeRefresh})
	}

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single coalesced signal")
	default:
	}
	assert.Equal(t, 5, q.Len())
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(Event{Type: EventTypeRefresh})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "refresh", EventTypeRefresh.String())
	assert.Equal(t, "poll", EventTypePoll.String())
	assert.Equal(t, "sync", EventTypeSync.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
