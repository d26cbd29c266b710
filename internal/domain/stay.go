package domain

import (
	"fmt"
	"time"
)

// StayStatus is the lifecycle status of a stay.
type StayStatus string

const (
	StatusPending    StayStatus = "pending"
	StatusConfirmed  StayStatus = "confirmed"
	StatusCheckedIn  StayStatus = "checked_in"
	StatusCheckedOut StayStatus = "checked_out"
	StatusCancelled  StayStatus = "cancelled"
	StatusNoShow     StayStatus = "no_show"
)

// Statuses lists every known status in display order.
var Statuses = []StayStatus{
	StatusPending,
	StatusConfirmed,
	StatusCheckedIn,
	StatusCheckedOut,
	StatusCancelled,
	StatusNoShow,
}

// Valid reports whether s is a known status.
func (s StayStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Label is the human-readable form used in notifications.
func (s StayStatus) Label() string {
	switch s {
	case StatusCheckedIn:
		return "checked in"
	case StatusCheckedOut:
		return "checked out"
	case StatusNoShow:
		return "no show"
	case "":
		return "unknown"
	}
	return string(s)
}

// Stay is a single guest's booked occupancy of one room.
type Stay struct {
	ID         string     `json:"id" yaml:"id"`
	PropertyID string     `json:"property_id,omitempty" yaml:"property_id,omitempty"`
	RoomID     string     `json:"room_id" yaml:"room_id"`
	GuestID    string     `json:"guest_id" yaml:"guest_id"`
	GuestName  string     `json:"guest_name,omitempty" yaml:"guest_name,omitempty"`
	CheckIn    Date       `json:"check_in" yaml:"check_in"`
	CheckOut   Date       `json:"check_out" yaml:"check_out"`
	Status     StayStatus `json:"status" yaml:"status"`
	Adults     int        `json:"adults" yaml:"adults"`
	Children   int        `json:"children" yaml:"children"`
	Total      Money      `json:"total" yaml:"total"`
	Notes      string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	Version    int64      `json:"version" yaml:"version,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty" yaml:"-"`
}

// Range returns the occupied interval [CheckIn, CheckOut).
func (s Stay) Range() Range {
	return Range{Start: s.CheckIn, End: s.CheckOut}
}

// Nights returns the stay length, or 0 when the dates are malformed.
func (s Stay) Nights() int {
	return s.Range().Nights()
}

// Guests returns adults plus children.
func (s Stay) Guests() int {
	return s.Adults + s.Children
}

// Cancelled reports whether the stay no longer holds its room.
func (s Stay) Cancelled() bool {
	return s.Status == StatusCancelled
}

// Occupies reports whether the stay occupies d (half-open rule).
func (s Stay) Occupies(d Date) bool {
	return s.Range().Contains(d)
}

// Validate checks the record invariants the engine depends on.
func (s Stay) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("stay: missing id")
	}
	if s.RoomID == "" {
		return fmt.Errorf("stay %s: missing room reference", s.ID)
	}
	if s.CheckIn.IsZero() || s.CheckOut.IsZero() {
		return fmt.Errorf("stay %s: missing check-in or check-out date", s.ID)
	}
	if !s.CheckOut.After(s.CheckIn) {
		return fmt.Errorf("stay %s: check-out %s is not after check-in %s", s.ID, s.CheckOut, s.CheckIn)
	}
	return nil
}

// StayPatch is a partial update. Nil fields are left unchanged.
type StayPatch struct {
	RoomID   *string     `json:"room_id,omitempty"`
	CheckIn  *Date       `json:"check_in,omitempty"`
	CheckOut *Date       `json:"check_out,omitempty"`
	Status   *StayStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p StayPatch) Empty() bool {
	return p.RoomID == nil && p.CheckIn == nil && p.CheckOut == nil && p.Status == nil
}

// Apply returns s with the patch applied. s is not modified.
func (p StayPatch) Apply(s Stay) Stay {
	if p.RoomID != nil {
		s.RoomID = *p.RoomID
	}
	if p.CheckIn != nil {
		s.CheckIn = *p.CheckIn
	}
	if p.CheckOut != nil {
		s.CheckOut = *p.CheckOut
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	return s
}

// StayFilter selects stays for a fetch. Zero-valued fields do not filter.
type StayFilter struct {
	PropertyID string
	IDs        []string
	// Window keeps stays whose [CheckIn, CheckOut) overlaps it.
	Window   *Range
	RoomIDs  []string
	Statuses []StayStatus
}

// Matches reports whether s passes the filter.
func (f StayFilter) Matches(s Stay) bool {
	if f.PropertyID != "" && s.PropertyID != f.PropertyID {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, s.ID) {
		return false
	}
	if f.Window != nil && !s.Range().Overlaps(*f.Window) {
		return false
	}
	if len(f.RoomIDs) > 0 && !containsString(f.RoomIDs, s.RoomID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == s.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RoomFilter selects rooms for a fetch.
type RoomFilter struct {
	PropertyID string
	IDs        []string
}

// Matches reports whether r passes the filter.
func (f RoomFilter) Matches(r Room) bool {
	if f.PropertyID != "" && r.PropertyID != f.PropertyID {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, r.ID) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
