package domain

import "fmt"

// Housekeeping is a room's cleaning state.
type Housekeeping string

const (
	HousekeepingClean      Housekeeping = "clean"
	HousekeepingDirty      Housekeeping = "dirty"
	HousekeepingInspected  Housekeeping = "inspected"
	HousekeepingOutOfOrder Housekeeping = "out_of_order"
)

// Valid reports whether h is a known housekeeping state.
func (h Housekeeping) Valid() bool {
	switch h {
	case HousekeepingClean, HousekeepingDirty, HousekeepingInspected, HousekeepingOutOfOrder:
		return true
	}
	return false
}

// Label is the human-readable form used in notifications.
func (h Housekeeping) Label() string {
	switch h {
	case HousekeepingOutOfOrder:
		return "out of order"
	case "":
		return "unknown"
	}
	return string(h)
}

// Room is a bookable unit. Read-only to the engine.
type Room struct {
	ID           string       `json:"id" yaml:"id"`
	PropertyID   string       `json:"property_id,omitempty" yaml:"property_id,omitempty"`
	Number       string       `json:"number" yaml:"number"`
	Type         string       `json:"type" yaml:"type"`
	Capacity     int          `json:"capacity" yaml:"capacity"`
	BaseRate     Money        `json:"base_rate" yaml:"base_rate"`
	Housekeeping Housekeeping `json:"housekeeping" yaml:"housekeeping"`
}

// DisplayName returns the room number, falling back to the id.
func (r Room) DisplayName() string {
	if r.Number != "" {
		return r.Number
	}
	return r.ID
}

// Money is an amount in minor currency units (e.g. cents).
//
// Totals are summed as-is; rounding belongs to the pricing system.
type Money int64

// String formats the amount with two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
