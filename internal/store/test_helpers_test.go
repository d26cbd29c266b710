package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, append([]Option{WithClock(testutil.NewFakeClock())}, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedStore inserts rooms and stays, failing the test on any error.
func seedStore(t *testing.T, s *Store, rooms []domain.Room, stays []domain.Stay) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rooms {
		if err := s.UpsertRoom(ctx, r); err != nil {
			t.Fatalf("UpsertRoom(%s) failed: %v", r.ID, err)
		}
	}
	for _, st := range stays {
		if _, err := s.InsertStay(ctx, st); err != nil {
			t.Fatalf("InsertStay(%s) failed: %v", st.ID, err)
		}
	}
}

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (r *recorder) Publish(e domain.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []domain.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChangeEvent(nil), r.events...)
}
