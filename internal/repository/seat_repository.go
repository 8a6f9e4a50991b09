package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

const seatColumns = `id, venue_id, row_label, seat_number, price, occupied, occupant_id, occupied_at, booking_id, version`

// SeatRepo reads and mutates seat occupancy.  Mutations are guarded by the
// seat version so a writer that lost a race never overwrites a newer state.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeat(row rowScanner) (model.Seat, error) {
	var (
		s          model.Seat
		occupant   sql.NullInt64
		occupiedAt sql.NullTime
		booking    sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.VenueID, &s.Row, &s.Number, &s.Price, &s.Occupied,
		&occupant, &occupiedAt, &booking, &s.Version); err != nil {
		return model.Seat{}, err
	}
	if occupant.Valid {
		id := uint64(occupant.Int64)
		s.OccupantID = &id
	}
	if occupiedAt.Valid {
		at := occupiedAt.Time.UTC()
		s.OccupiedAt = &at
	}
	if booking.Valid {
		id := uint64(booking.Int64)
		s.BookingID = &id
	}
	return s, nil
}

// GetForUpdate locks the seat at loc inside venueID.  Must run inside a
// transaction started by TxManager.
func (r *SeatRepo) GetForUpdate(ctx context.Context, venueID uint64, loc model.SeatLocator) (model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE venue_id = ? AND row_label = ? AND seat_number = ? FOR UPDATE`
	s, err := scanSeat(conn(ctx, r.db).QueryRowContext(ctx, q, venueID, loc.Row, loc.Number))
	if err != nil {
		return model.Seat{}, notFound(err, fmt.Sprintf("seat %s not found", loc))
	}
	return s, nil
}

// GetByIDForUpdate locks a seat by primary key.
func (r *SeatRepo) GetByIDForUpdate(ctx context.Context, seatID uint64) (model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id = ? FOR UPDATE`
	s, err := scanSeat(conn(ctx, r.db).QueryRowContext(ctx, q, seatID))
	if err != nil {
		return model.Seat{}, notFound(err, "seat not found")
	}
	return s, nil
}

// Occupy marks a free seat as held by bookingID.  It returns ErrStale when
// the seat changed since it was read.
func (r *SeatRepo) Occupy(ctx context.Context, s model.Seat, userID, bookingID uint64, at time.Time) (model.Seat, error) {
	const q = `UPDATE seats
	           SET occupied = 1, occupant_id = ?, occupied_at = ?, booking_id = ?, version = version + 1
	           WHERE id = ? AND version = ? AND occupied = 0`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, userID, at, bookingID, s.ID, s.Version)
	if err != nil {
		return model.Seat{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Seat{}, err
	} else if n == 0 {
		return model.Seat{}, ErrStale
	}
	s.Occupied = true
	s.OccupantID = &userID
	s.OccupiedAt = &at
	s.BookingID = &bookingID
	s.Version++
	return s, nil
}

// Free clears occupancy.  It returns ErrStale when the seat changed since it
// was read.
func (r *SeatRepo) Free(ctx context.Context, s model.Seat) (model.Seat, error) {
	const q = `UPDATE seats
	           SET occupied = 0, occupant_id = NULL, occupied_at = NULL, booking_id = NULL, version = version + 1
	           WHERE id = ? AND version = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, s.ID, s.Version)
	if err != nil {
		return model.Seat{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Seat{}, err
	} else if n == 0 {
		return model.Seat{}, ErrStale
	}
	s.Occupied = false
	s.OccupantID = nil
	s.OccupiedAt = nil
	s.BookingID = nil
	s.Version++
	return s, nil
}

// ListByVenue returns the venue's seats ordered by row then number.
func (r *SeatRepo) ListByVenue(ctx context.Context, venueID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE venue_id = ? ORDER BY row_label, seat_number`
	return r.query(ctx, q, venueID)
}

// ListOccupiedForUpdate locks every occupied seat of a venue.
func (r *SeatRepo) ListOccupiedForUpdate(ctx context.Context, venueID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE venue_id = ? AND occupied = 1 ORDER BY id FOR UPDATE`
	return r.query(ctx, q, venueID)
}

func (r *SeatRepo) query(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateBulk inserts the seats of a newly provisioned venue in a single
// statement.
func (r *SeatRepo) CreateBulk(ctx context.Context, venueID uint64, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (venue_id, row_label, seat_number, price) VALUES `
	args := make([]any, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, venueID, s.Row, s.Number, s.Price)
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	return err
}
