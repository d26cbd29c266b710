package testutil

import "github.com/bagoessprasetyo/property-management-sub000/internal/domain"

// D parses a YYYY-MM-DD literal.
func D(s string) domain.Date {
	return domain.MustParseDate(s)
}

// Room builds a clean room with a base rate of 100.00.
func Room(id string) domain.Room {
	return domain.Room{
		ID:           id,
		Number:       id,
		Type:         "standard",
		Capacity:     2,
		BaseRate:     10000,
		Housekeeping: domain.HousekeepingClean,
	}
}

// Stay builds a confirmed two-adult stay.
func Stay(id, roomID, checkIn, checkOut string) domain.Stay {
	return domain.Stay{
		ID:       id,
		RoomID:   roomID,
		GuestID:  "guest-" + id,
		CheckIn:  D(checkIn),
		CheckOut: D(checkOut),
		Status:   domain.StatusConfirmed,
		Adults:   2,
		Total:    domain.Money(10000 * D(checkIn).DaysUntil(D(checkOut))),
	}
}

// WithStatus returns s with its status replaced.
func WithStatus(s domain.Stay, status domain.StayStatus) domain.Stay {
	s.Status = status
	return s
}
