package feed

import (
	"fmt"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/notify"
)

// Describe maps a change event to the notification it should produce.
// ok is false for events that only warrant a refresh (room changes other
// than housekeeping, or events missing their record).
func Describe(e domain.ChangeEvent) (draft notify.Draft, ok bool) {
	switch e.Entity {
	case domain.EntityStay:
		return describeStay(e)
	case domain.EntityRoom:
		return describeRoom(e)
	}
	return notify.Draft{}, false
}

func describeStay(e domain.ChangeEvent) (notify.Draft, bool) {
	payload := map[string]any{"stay_id": e.StayID(), "op": string(e.Op)}

	switch e.Op {
	case domain.OpInsert:
		if e.NewStay == nil {
			return notify.Draft{}, false
		}
		s := e.NewStay
		payload["room_id"] = s.RoomID
		return notify.Draft{
			Category: notify.CategoryCreated,
			Title:    "New reservation",
			Message: fmt.Sprintf("%s booked room %s from %s to %s",
				guestLabel(*s), s.RoomID, s.CheckIn, s.CheckOut),
			Payload: payload,
		}, true

	case domain.OpUpdate:
		if e.NewStay == nil {
			return notify.Draft{}, false
		}
		s := e.NewStay
		payload["room_id"] = s.RoomID
		if e.OldStay != nil && e.OldStay.Status != s.Status {
			payload["status"] = string(s.Status)
			return notify.Draft{
				Category: notify.CategoryStatusChanged,
				Title:    "Reservation status changed",
				Message:  fmt.Sprintf("Reservation for %s is now %s", guestLabel(*s), s.Status.Label()),
				Payload:  payload,
			}, true
		}
		return notify.Draft{
			Category: notify.CategoryUpdated,
			Title:    "Reservation updated",
			Message: fmt.Sprintf("Reservation for %s updated: room %s, %s to %s",
				guestLabel(*s), s.RoomID, s.CheckIn, s.CheckOut),
			Payload: payload,
		}, true

	case domain.OpDelete:
		msg := fmt.Sprintf("Reservation %s was cancelled", e.StayID())
		if e.OldStay != nil {
			msg = fmt.Sprintf("Reservation for %s was cancelled", guestLabel(*e.OldStay))
		}
		return notify.Draft{
			Category: notify.CategoryCancelled,
			Title:    "Reservation cancelled",
			Message:  msg,
			Payload:  payload,
		}, true
	}
	return notify.Draft{}, false
}

func describeRoom(e domain.ChangeEvent) (notify.Draft, bool) {
	if e.Op != domain.OpUpdate || e.NewRoom == nil {
		return notify.Draft{}, false
	}
	r := e.NewRoom
	if e.OldRoom != nil && e.OldRoom.Housekeeping == r.Housekeeping {
		return notify.Draft{}, false
	}
	return notify.Draft{
		Category: notify.CategoryRoomStatus,
		Title:    "Room status changed",
		Message:  fmt.Sprintf("Room %s is now %s", r.DisplayName(), r.Housekeeping.Label()),
		Payload: map[string]any{
			"room_id":      r.ID,
			"housekeeping": string(r.Housekeeping),
		},
	}, true
}

func guestLabel(s domain.Stay) string {
	if s.GuestName != "" {
		return s.GuestName
	}
	return "stay " + s.ID
}
