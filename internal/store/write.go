package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// UpsertRoom inserts or replaces a room and publishes the change.
func (s *Store) UpsertRoom(ctx context.Context, r domain.Room) error {
	if r.ID == "" {
		return fmt.Errorf("upsert room: %w: missing id", ErrInvalid)
	}
	if r.Housekeeping == "" {
		r.Housekeeping = domain.HousekeepingClean
	}
	if !r.Housekeeping.Valid() {
		return fmt.Errorf("upsert room %s: %w: housekeeping %q", r.ID, ErrInvalid, r.Housekeeping)
	}

	old, err := getRoom(ctx, s.db, r.ID)
	existed := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("upsert room: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			number = excluded.number,
			type = excluded.type,
			capacity = excluded.capacity,
			base_rate = excluded.base_rate,
			housekeeping = excluded.housekeeping
	`, r.ID, r.PropertyID, r.Number, r.Type, r.Capacity, int64(r.BaseRate), string(r.Housekeeping))
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	e := domain.ChangeEvent{Entity: domain.EntityRoom, Op: domain.OpInsert, NewRoom: &r, At: s.clock.Now()}
	if existed {
		e.Op = domain.OpUpdate
		e.OldRoom = &old
	}
	s.publish(e)
	return nil
}

// SetHousekeeping changes a room's housekeeping status.
func (s *Store) SetHousekeeping(ctx context.Context, roomID string, h domain.Housekeeping) (domain.Room, error) {
	if !h.Valid() {
		return domain.Room{}, fmt.Errorf("set housekeeping: %w: %q", ErrInvalid, h)
	}
	old, err := getRoom(ctx, s.db, roomID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("set housekeeping: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET housekeeping = ? WHERE id = ?`, string(h), roomID); err != nil {
		return domain.Room{}, fmt.Errorf("set housekeeping: %w", err)
	}

	updated := old
	updated.Housekeeping = h
	s.publish(domain.ChangeEvent{
		Entity: domain.EntityRoom, Op: domain.OpUpdate,
		OldRoom: &old, NewRoom: &updated, At: s.clock.Now(),
	})
	return updated, nil
}

// InsertStay stores a new stay. Version starts at 1 and UpdatedAt is set
// from the store clock. A non-cancelled stay that overlaps another in the
// same room fails with ErrConflict.
func (s *Store) InsertStay(ctx context.Context, st domain.Stay) (domain.Stay, error) {
	if err := st.Validate(); err != nil {
		return domain.Stay{}, fmt.Errorf("insert stay: %w: %v", ErrInvalid, err)
	}
	if st.Status == "" {
		st.Status = domain.StatusPending
	}
	if !st.Status.Valid() {
		return domain.Stay{}, fmt.Errorf("insert stay %s: %w: status %q", st.ID, ErrInvalid, st.Status)
	}
	st.Version = 1
	st.UpdatedAt = s.clock.Now().UTC()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getStay(ctx, tx, st.ID); err == nil {
			return fmt.Errorf("stay %s: %w", st.ID, ErrExists)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := checkOverlap(ctx, tx, st); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stays (`+stayColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, stayArgs(st)...)
		return err
	})
	if err != nil {
		return domain.Stay{}, fmt.Errorf("insert stay: %w", err)
	}

	s.publish(domain.ChangeEvent{Entity: domain.EntityStay, Op: domain.OpInsert, NewStay: &st, At: st.UpdatedAt})
	return st, nil
}

// UpdateStay applies a partial update and returns the stored record.
//
// Room or date changes are checked for overlap (ErrConflict) and reprice
// the stay at nights × the target room's base rate. Version is bumped by
// one and the row is written only if nobody else bumped it first.
func (s *Store) UpdateStay(ctx context.Context, id string, patch domain.StayPatch) (domain.Stay, error) {
	var old, updated domain.Stay

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		old, err = getStay(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = patch.Apply(old)
		if err := updated.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if !updated.Status.Valid() {
			return fmt.Errorf("%w: status %q", ErrInvalid, updated.Status)
		}

		moved := updated.RoomID != old.RoomID || updated.CheckIn != old.CheckIn || updated.CheckOut != old.CheckOut
		if moved || (old.Cancelled() && !updated.Cancelled()) {
			if err := checkOverlap(ctx, tx, updated); err != nil {
				return err
			}
		}
		if moved {
			room, err := getRoom(ctx, tx, updated.RoomID)
			if err != nil {
				return err
			}
			if room.BaseRate > 0 {
				updated.Total = room.BaseRate * domain.Money(updated.Nights())
			}
		}

		updated.Version = old.Version + 1
		updated.UpdatedAt = s.clock.Now().UTC()

		res, err := tx.ExecContext(ctx, `
			UPDATE stays SET
				room_id = ?, check_in = ?, check_out = ?, status = ?,
				total = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?
		`,
			updated.RoomID, updated.CheckIn.String(), updated.CheckOut.String(), string(updated.Status),
			int64(updated.Total), updated.Version, updated.UpdatedAt.UnixNano(),
			id, old.Version,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%w: stay %s changed concurrently", ErrConflict, id)
		}
		return nil
	})
	if err != nil {
		return domain.Stay{}, fmt.Errorf("update stay: %w", err)
	}

	s.logger.Debug("stay updated", zap.String("stay_id", id), zap.Int64("version", updated.Version))
	s.publish(domain.ChangeEvent{
		Entity: domain.EntityStay, Op: domain.OpUpdate,
		OldStay: &old, NewStay: &updated, At: updated.UpdatedAt,
	})
	return updated, nil
}

// DeleteStay removes a stay and publishes a delete event.
func (s *Store) DeleteStay(ctx context.Context, id string) error {
	var old domain.Stay
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		old, err = getStay(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM stays WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete stay: %w", err)
	}

	s.publish(domain.ChangeEvent{Entity: domain.EntityStay, Op: domain.OpDelete, OldStay: &old, At: s.clock.Now()})
	return nil
}

// checkOverlap fails with a *ConflictError if a non-cancelled stay other
// than st occupies st's room on any of its nights.
func checkOverlap(ctx context.Context, tx *sql.Tx, st domain.Stay) error {
	if st.Cancelled() {
		return nil
	}
	var other string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM stays
		WHERE room_id = ? AND id <> ? AND status <> ?
		  AND check_in < ? AND check_out > ?
		ORDER BY check_in ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, st.RoomID, st.ID, string(domain.StatusCancelled), st.CheckOut.String(), st.CheckIn.String()).Scan(&other)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	return &ConflictError{StayID: st.ID, RoomID: st.RoomID, Conflicting: other}
}

func stayArgs(st domain.Stay) []any {
	return []any{
		st.ID, st.PropertyID, st.RoomID, st.GuestID, st.GuestName,
		st.CheckIn.String(), st.CheckOut.String(), string(st.Status),
		st.Adults, st.Children, int64(st.Total), st.Notes, st.Version,
		st.UpdatedAt.UnixNano(),
	}
}

// inTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
