package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

const stayColumns = `id, property_id, room_id, guest_id, guest_name, check_in, check_out,
	status, adults, children, total, notes, version, updated_at`

const roomColumns = `id, property_id, number, type, capacity, base_rate, housekeeping`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// FetchStays returns the stays matching filter.
// Results are ordered deterministically: ORDER BY check_in ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) FetchStays(ctx context.Context, filter domain.StayFilter) ([]domain.Stay, error) {
	var where []string
	var args []any

	if filter.PropertyID != "" {
		where = append(where, "property_id = ?")
		args = append(args, filter.PropertyID)
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		args = appendStrings(args, filter.IDs)
	}
	if len(filter.RoomIDs) > 0 {
		where = append(where, "room_id IN ("+placeholders(len(filter.RoomIDs))+")")
		args = appendStrings(args, filter.RoomIDs)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.Window != nil {
		// Half-open overlap: check_in < end AND check_out > start.
		where = append(where, "check_in < ? AND check_out > ?")
		args = append(args, filter.Window.End.String(), filter.Window.Start.String())
	}

	query := "SELECT " + stayColumns + " FROM stays"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY check_in ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stays: %w", err)
	}
	defer rows.Close()

	stays := []domain.Stay{}
	for rows.Next() {
		st, err := scanStay(rows)
		if err != nil {
			return nil, err
		}
		stays = append(stays, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stays: %w", err)
	}
	return stays, nil
}

// FetchRooms returns the rooms matching filter.
// Results are ordered deterministically: ORDER BY number ASC, id ASC COLLATE BINARY.
func (s *Store) FetchRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	var where []string
	var args []any

	if filter.PropertyID != "" {
		where = append(where, "property_id = ?")
		args = append(args, filter.PropertyID)
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		args = appendStrings(args, filter.IDs)
	}

	query := "SELECT " + roomColumns + " FROM rooms"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY number COLLATE BINARY ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []domain.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// GetStay returns one stay by id, or ErrNotFound.
func (s *Store) GetStay(ctx context.Context, id string) (domain.Stay, error) {
	return getStay(ctx, s.db, id)
}

// GetRoom returns one room by id, or ErrNotFound.
func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	return getRoom(ctx, s.db, id)
}

func getStay(ctx context.Context, q querier, id string) (domain.Stay, error) {
	row := q.QueryRowContext(ctx, "SELECT "+stayColumns+" FROM stays WHERE id = ?", id)
	st, err := scanStay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Stay{}, fmt.Errorf("stay %s: %w", id, ErrNotFound)
	}
	return st, err
}

func getRoom(ctx context.Context, q querier, id string) (domain.Room, error) {
	row := q.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return r, err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStay(sc scanner) (domain.Stay, error) {
	var (
		st                      domain.Stay
		checkIn, checkOut, stat string
		total, updatedAt        int64
	)
	err := sc.Scan(
		&st.ID, &st.PropertyID, &st.RoomID, &st.GuestID, &st.GuestName,
		&checkIn, &checkOut, &stat, &st.Adults, &st.Children, &total,
		&st.Notes, &st.Version, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Stay{}, err
		}
		return domain.Stay{}, fmt.Errorf("scan stay: %w", err)
	}
	if st.CheckIn, err = domain.ParseDate(checkIn); err != nil {
		return domain.Stay{}, fmt.Errorf("scan stay %s: %w", st.ID, err)
	}
	if st.CheckOut, err = domain.ParseDate(checkOut); err != nil {
		return domain.Stay{}, fmt.Errorf("scan stay %s: %w", st.ID, err)
	}
	st.Status = domain.StayStatus(stat)
	st.Total = domain.Money(total)
	if updatedAt != 0 {
		st.UpdatedAt = time.Unix(0, updatedAt).UTC()
	}
	return st, nil
}

func scanRoom(sc scanner) (domain.Room, error) {
	var (
		r         domain.Room
		rate      int64
		housekeep string
	)
	err := sc.Scan(&r.ID, &r.PropertyID, &r.Number, &r.Type, &r.Capacity, &rate, &housekeep)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, err
		}
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	r.BaseRate = domain.Money(rate)
	r.Housekeeping = domain.Housekeeping(housekeep)
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
