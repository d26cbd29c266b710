package availability

import (
	"errors"
	"fmt"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// ErrInvalidRange is returned when a query range ends before it starts.
var ErrInvalidRange = errors.New("invalid date range")

// RoomAvailability is the free/busy answer for one room.
type RoomAvailability struct {
	Room      domain.Room
	Available bool
	// Conflicts are the non-cancelled stays intersecting the query range,
	// in stay input order.
	Conflicts []domain.Stay
}

// Availability reports, for every room in input order, whether it is free
// for the whole half-open range [start, end).
func Availability(rooms []domain.Room, stays []domain.Stay, start, end domain.Date) ([]RoomAvailability, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidRange, start, end)
	}
	window := domain.NewRange(start, end)

	byRoom := make(map[string][]domain.Stay)
	for _, s := range stays {
		if s.Cancelled() || !s.Range().Overlaps(window) {
			continue
		}
		byRoom[s.RoomID] = append(byRoom[s.RoomID], s)
	}

	out := make([]RoomAvailability, 0, len(rooms))
	for _, room := range rooms {
		conflicts := byRoom[room.ID]
		out = append(out, RoomAvailability{
			Room:      room,
			Available: len(conflicts) == 0,
			Conflicts: conflicts,
		})
	}
	return out, nil
}

// Free returns just the rooms that are available.
func Free(results []RoomAvailability) []domain.Room {
	var rooms []domain.Room
	for _, r := range results {
		if r.Available {
			rooms = append(rooms, r.Room)
		}
	}
	return rooms
}
