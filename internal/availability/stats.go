package availability

import (
	"fmt"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// Stats aggregates a stay set over a period.
type Stats struct {
	ByStatus map[domain.StayStatus]int `json:"by_status"`
	Total    int                       `json:"total"`
	// Revenue sums the totals of non-cancelled stays.
	Revenue domain.Money `json:"revenue"`
	// Guests counts adults and children over every candidate, cancelled
	// ones included.
	Guests    int `json:"guests"`
	CheckIns  int `json:"check_ins"`
	CheckOuts int `json:"check_outs"`
	// OccupiedRoomNights counts non-cancelled nights that fall inside
	// [start, end).
	OccupiedRoomNights int `json:"occupied_room_nights"`
	Nights             int `json:"nights"`
}

// OverlapCandidates keeps the stays whose occupancy intersects
// [start, end), cancelled stays included.
func OverlapCandidates(stays []domain.Stay, start, end domain.Date) []domain.Stay {
	window := domain.NewRange(start, end)
	var out []domain.Stay
	for _, s := range stays {
		if s.Range().Overlaps(window) {
			out = append(out, s)
		}
	}
	return out
}

// Compute aggregates candidates over the period start..end.
//
// Candidates are first narrowed with OverlapCandidates. Check-ins and
// check-outs are point events and count when their date falls inside
// [start, end], both ends inclusive. A zero-length period (start == end)
// is allowed and treated as the single day start.
func Compute(candidates []domain.Stay, start, end domain.Date) (Stats, error) {
	if end.Before(start) {
		return Stats{}, fmt.Errorf("%w: %s..%s", ErrInvalidRange, start, end)
	}
	overlapEnd := end
	if overlapEnd == start {
		overlapEnd = start.AddDays(1)
	}
	window := domain.NewRange(start, overlapEnd)

	st := Stats{
		ByStatus: make(map[domain.StayStatus]int),
		Nights:   window.Nights(),
	}
	for _, s := range OverlapCandidates(candidates, start, overlapEnd) {
		st.Total++
		st.ByStatus[s.Status]++
		st.Guests += s.Guests()

		if !s.CheckIn.Before(start) && !s.CheckIn.After(end) {
			st.CheckIns++
		}
		if !s.CheckOut.Before(start) && !s.CheckOut.After(end) {
			st.CheckOuts++
		}
		if s.Cancelled() {
			continue
		}
		st.Revenue += s.Total
		st.OccupiedRoomNights += clippedNights(s.Range(), window)
	}
	return st, nil
}

// OccupancyRate is occupied room-nights over the capacity of rooms rooms
// for the period. It is zero when there is nothing to divide by.
func (s Stats) OccupancyRate(rooms int) float64 {
	capacity := rooms * s.Nights
	if capacity <= 0 {
		return 0
	}
	return float64(s.OccupiedRoomNights) / float64(capacity)
}

func clippedNights(r, window domain.Range) int {
	start := r.Start
	if start.Before(window.Start) {
		start = window.Start
	}
	end := r.End
	if end.After(window.End) {
		end = window.End
	}
	if !end.After(start) {
		return 0
	}
	return start.DaysUntil(end)
}
