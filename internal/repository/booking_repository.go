package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

const bookingColumns = `b.id, b.user_id, b.kind, b.venue_id, b.seat_id, b.row_label, b.seat_index, b.seat_number, b.status, b.price, b.booked_at, b.left_at`

// Unique keys enforcing the single-occupancy rules (see database/schema.go).
const (
	keyActiveSeat        = "uq_bookings_active_seat"
	keyActiveLibraryUser = "uq_bookings_active_library_user"
)

// BookingRepo is the booking ledger.  Rows are appended on reserve and
// flipped to completed on release; nothing is ever deleted.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b      model.Booking
		kind   string
		status string
		leftAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.UserID, &kind, &b.VenueID, &b.SeatID, &b.Seat.Row, &b.Seat.Number,
		&b.SeatNumber, &status, &b.Price, &b.BookedAt, &leftAt); err != nil {
		return model.Booking{}, err
	}
	b.Kind = model.VenueKind(kind)
	b.Status = model.BookingStatus(status)
	b.BookedAt = b.BookedAt.UTC()
	if leftAt.Valid {
		t := leftAt.Time.UTC()
		b.LeftAt = &t
	}
	return b, nil
}

// Append inserts a new active booking and sets b.ID.  The unique keys on
// the generated active_* columns turn a lost race into AlreadyOccupied or
// DuplicateActiveBooking.
func (r *BookingRepo) Append(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, kind, venue_id, seat_id, row_label, seat_index, seat_number, status, price, booked_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, b.UserID, string(b.Kind), b.VenueID, b.SeatID,
		b.Seat.Row, b.Seat.Number, b.SeatNumber, string(model.BookingActive), b.Price, b.BookedAt)
	if err != nil {
		switch {
		case isDuplicateKey(err, keyActiveLibraryUser):
			return model.NewError(model.ErrDuplicateActiveBooking, "you already have an active library booking")
		case isDuplicateKey(err, keyActiveSeat):
			return model.NewError(model.ErrAlreadyOccupied, "seat is already occupied")
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.Status = model.BookingActive
	return nil
}

// FindActive returns the user's active booking of the given kind, or nil.
// The read locks the matching index range so a concurrent reserve by the
// same user waits for this transaction.
func (r *BookingRepo) FindActive(ctx context.Context, userID uint64, kind model.VenueKind) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b
	      WHERE b.user_id = ? AND b.kind = ? AND b.status = 'active'
	      ORDER BY b.id LIMIT 1 FOR UPDATE`
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, userID, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetForUpdate locks a booking by id.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uint64) (model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ? FOR UPDATE`
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		return model.Booking{}, notFound(err, "booking not found")
	}
	return b, nil
}

// Complete flips an active booking to completed and stamps left_at.
func (r *BookingRepo) Complete(ctx context.Context, id uint64, at time.Time) error {
	const q = `UPDATE bookings SET status = 'completed', left_at = ? WHERE id = ? AND status = 'active'`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NewError(model.ErrNotFound, "no active booking to complete")
	}
	return nil
}

// ListActiveByVenueForUpdate locks the venue's active bookings.
func (r *BookingRepo) ListActiveByVenueForUpdate(ctx context.Context, venueID uint64) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.venue_id = ? AND b.status = 'active' ORDER BY b.id FOR UPDATE`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListByUser returns the user's bookings with the venue summary resolved,
// newest first.  An empty status returns every booking.  The venue join is
// a LEFT JOIN: bookings of a deleted venue are still listed, without venue.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + `, v.id, v.kind, v.name, v.floor, v.location, v.starts_at
	      FROM bookings b
	      LEFT JOIN venues v ON v.id = b.venue_id
	      WHERE b.user_id = ?`
	args := []any{userID}
	if status != "" {
		q += ` AND b.status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY b.booked_at DESC, b.id DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		var (
			b                          model.Booking
			kind, st                   string
			leftAt                     sql.NullTime
			vID                        sql.NullInt64
			vKind, vName, vFloor, vLoc sql.NullString
			vStarts                    sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.UserID, &kind, &b.VenueID, &b.SeatID, &b.Seat.Row, &b.Seat.Number,
			&b.SeatNumber, &st, &b.Price, &b.BookedAt, &leftAt,
			&vID, &vKind, &vName, &vFloor, &vLoc, &vStarts); err != nil {
			return nil, err
		}
		b.Kind = model.VenueKind(kind)
		b.Status = model.BookingStatus(st)
		b.BookedAt = b.BookedAt.UTC()
		if leftAt.Valid {
			t := leftAt.Time.UTC()
			b.LeftAt = &t
		}
		if vID.Valid {
			sum := &model.VenueSummary{
				ID:       uint64(vID.Int64),
				Kind:     model.VenueKind(vKind.String),
				Name:     vName.String,
				Floor:    vFloor.String,
				Location: vLoc.String,
			}
			if vStarts.Valid {
				t := vStarts.Time.UTC()
				sum.StartsAt = &t
			}
			b.Venue = sum
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
