package schedule

import (
	"fmt"
	"strings"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// Cell is a (room, date) position on the grid, as reported by the
// interaction surface.
type Cell struct {
	RoomID string      `json:"room_id"`
	Date   domain.Date `json:"date"`
}

func (c Cell) String() string { return c.RoomID + "@" + c.Date.String() }

// ParseCell parses the ROOM@YYYY-MM-DD form produced by Cell.String.
func ParseCell(s string) (Cell, error) {
	room, date, ok := strings.Cut(s, "@")
	if !ok || room == "" {
		return Cell{}, fmt.Errorf("cell %q: want ROOM@YYYY-MM-DD", s)
	}
	d, err := domain.ParseDate(date)
	if err != nil {
		return Cell{}, fmt.Errorf("cell %q: %w", s, err)
	}
	return Cell{RoomID: room, Date: d}, nil
}

// Derive computes the patch for moving stay from src to dst.
//
// A room change sets the room and leaves dates alone. A date change sets
// check-in to dst.Date and shifts check-out by the same number of days, so
// the night count never changes. checkOut, when non-nil, overrides the
// derived check-out (a resize).
//
// The returned patch only carries fields that differ from stay; the second
// result is stay with the patch applied.
func Derive(stay domain.Stay, src, dst Cell, checkOut *domain.Date) (domain.StayPatch, domain.Stay, error) {
	var patch domain.StayPatch

	if dst.RoomID != src.RoomID && dst.RoomID != stay.RoomID {
		room := dst.RoomID
		patch.RoomID = &room
	}

	in, out := stay.CheckIn, stay.CheckOut
	if dst.Date != src.Date {
		delta := stay.CheckIn.DaysUntil(dst.Date)
		in = dst.Date
		out = stay.CheckOut.AddDays(delta)
	}
	if checkOut != nil {
		out = *checkOut
	}
	if !out.After(in) {
		return domain.StayPatch{}, stay, NewInvalidMoveError(stay.ID,
			"check-out "+out.String()+" is not after check-in "+in.String())
	}
	if in != stay.CheckIn {
		patch.CheckIn = &in
	}
	if out != stay.CheckOut {
		patch.CheckOut = &out
	}

	return patch, patch.Apply(stay), nil
}
