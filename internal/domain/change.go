package domain

import "time"

// EntityKind names the record type a change event refers to.
type EntityKind string

const (
	EntityStay EntityKind = "stay"
	EntityRoom EntityKind = "room"
)

// Operation is the kind of mutation a change event reports.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent is one remote mutation delivered by a change feed.
//
// For stays, OldStay/NewStay are set; for rooms, OldRoom/NewRoom. Old is
// optional on updates (some feeds only send the new row) and New is absent
// on deletes.
type ChangeEvent struct {
	Entity  EntityKind `json:"entity"`
	Op      Operation  `json:"op"`
	OldStay *Stay      `json:"old_stay,omitempty"`
	NewStay *Stay      `json:"new_stay,omitempty"`
	OldRoom *Room      `json:"old_room,omitempty"`
	NewRoom *Room      `json:"new_room,omitempty"`
	At      time.Time  `json:"at"`
}

// StayID returns the id of the stay the event refers to, or "".
func (e ChangeEvent) StayID() string {
	if e.NewStay != nil {
		return e.NewStay.ID
	}
	if e.OldStay != nil {
		return e.OldStay.ID
	}
	return ""
}

// RoomID returns the id of the room the event refers to, or "".
func (e ChangeEvent) RoomID() string {
	if e.NewRoom != nil {
		return e.NewRoom.ID
	}
	if e.OldRoom != nil {
		return e.OldRoom.ID
	}
	return ""
}

// PropertyID returns the property of the affected record, or "".
func (e ChangeEvent) PropertyID() string {
	switch {
	case e.NewStay != nil:
		return e.NewStay.PropertyID
	case e.OldStay != nil:
		return e.OldStay.PropertyID
	case e.NewRoom != nil:
		return e.NewRoom.PropertyID
	case e.OldRoom != nil:
		return e.OldRoom.PropertyID
	}
	return ""
}

// ChangeFilter scopes a subscription. Empty fields match everything.
type ChangeFilter struct {
	PropertyID string
}

// Matches reports whether e is in scope.
func (f ChangeFilter) Matches(e ChangeEvent) bool {
	if f.PropertyID == "" {
		return true
	}
	return e.PropertyID() == f.PropertyID
}
