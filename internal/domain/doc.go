// Package domain defines the records the calendar engine works with.
//
// Rooms and stays are owned by the stay record store; the engine only reads
// them, except for the fields a reschedule changes. Everything here is plain
// data: no I/O, no locking.
//
// Occupancy is night-based. A stay occupies every date in the half-open
// interval [CheckIn, CheckOut); the checkout date is a changeover day and is
// not occupied.
package domain
