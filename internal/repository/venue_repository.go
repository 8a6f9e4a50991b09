package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

const venueColumns = `id, kind, name, total_seats, floor, description, category, location, starts_at`

// VenueRepo manages libraries and events.  Seats are loaded through the
// embedded SeatRepo so listings return complete seat maps.
type VenueRepo struct {
	db    *sql.DB
	seats *SeatRepo
}

// NewVenueRepo returns a VenueRepo bound to db.
func NewVenueRepo(db *sql.DB, seats *SeatRepo) *VenueRepo {
	return &VenueRepo{db: db, seats: seats}
}

func scanVenue(row rowScanner) (model.Venue, error) {
	var (
		v        model.Venue
		kind     string
		startsAt sql.NullTime
	)
	if err := row.Scan(&v.ID, &kind, &v.Name, &v.TotalSeats, &v.Floor, &v.Description,
		&v.Category, &v.Location, &startsAt); err != nil {
		return model.Venue{}, err
	}
	v.Kind = model.VenueKind(kind)
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		v.StartsAt = &t
	}
	return v, nil
}

// Create inserts the venue row and all its seats.  v.ID and the seat IDs
// are populated on success.  Call inside TxManager.WithTx.
func (r *VenueRepo) Create(ctx context.Context, v *model.Venue) error {
	if len(v.Seats) != v.TotalSeats {
		return model.NewError(model.ErrInvalid, fmt.Sprintf("venue declares %d seats but has %d", v.TotalSeats, len(v.Seats)))
	}
	const q = `INSERT INTO venues (kind, name, total_seats, floor, description, category, location, starts_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, string(v.Kind), v.Name, v.TotalSeats,
		v.Floor, v.Description, v.Category, v.Location, v.StartsAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	if err := r.seats.CreateBulk(ctx, v.ID, v.Seats); err != nil {
		return err
	}
	seats, err := r.seats.ListByVenue(ctx, v.ID)
	if err != nil {
		return err
	}
	v.Seats = seats
	return nil
}

// Get returns the venue without its seats.
func (r *VenueRepo) Get(ctx context.Context, id uint64) (model.Venue, error) {
	q := `SELECT ` + venueColumns + ` FROM venues WHERE id = ?`
	v, err := scanVenue(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		return model.Venue{}, notFound(err, "venue not found")
	}
	return v, nil
}

// GetWithSeats returns the venue and its seat map.
func (r *VenueRepo) GetWithSeats(ctx context.Context, id uint64) (model.Venue, error) {
	v, err := r.Get(ctx, id)
	if err != nil {
		return model.Venue{}, err
	}
	if v.Seats, err = r.seats.ListByVenue(ctx, id); err != nil {
		return model.Venue{}, err
	}
	return v, nil
}

// List returns venues of one kind with their seats.  When from is non-nil
// only venues starting at or after it are returned (upcoming events).
func (r *VenueRepo) List(ctx context.Context, kind model.VenueKind, from *time.Time) ([]model.Venue, error) {
	q := `SELECT ` + venueColumns + ` FROM venues WHERE kind = ?`
	args := []any{string(kind)}
	if from != nil {
		q += ` AND starts_at >= ?`
		args = append(args, *from)
	}
	q += ` ORDER BY starts_at, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	venues := []model.Venue{}
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		venues = append(venues, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		return venues, nil
	}

	index := make(map[uint64]int, len(venues))
	holders := make([]string, len(venues))
	ids := make([]any, len(venues))
	for i, v := range venues {
		index[v.ID] = i
		holders[i] = "?"
		ids[i] = v.ID
		venues[i].Seats = []model.Seat{}
	}
	seats, err := r.seats.query(ctx, `SELECT `+seatColumns+` FROM seats WHERE venue_id IN (`+
		strings.Join(holders, ",")+`) ORDER BY venue_id, row_label, seat_number`, ids...)
	if err != nil {
		return nil, err
	}
	for _, s := range seats {
		i := index[s.VenueID]
		venues[i].Seats = append(venues[i].Seats, s)
	}
	return venues, nil
}

// Delete removes a venue and, through the foreign key, its seats.  Bookings
// that referenced the venue are kept.
func (r *VenueRepo) Delete(ctx context.Context, id uint64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM venues WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NewError(model.ErrNotFound, "venue not found")
	}
	return nil
}

// Count returns the number of provisioned venues.
func (r *VenueRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n)
	return n, err
}
