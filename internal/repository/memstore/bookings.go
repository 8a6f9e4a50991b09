package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// Bookings mirrors repository.BookingRepo, including the uniqueness rules
// the MySQL schema enforces with generated-column keys.
type Bookings struct{ s *Store }

func (r *Bookings) Append(ctx context.Context, b *model.Booking) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.bookings {
			if !other.Active() {
				continue
			}
			if b.Kind == model.VenueLibrary && other.Kind == model.VenueLibrary && other.UserID == b.UserID {
				return model.NewError(model.ErrDuplicateActiveBooking, "you already have an active library booking")
			}
			if other.SeatID == b.SeatID {
				return model.NewError(model.ErrAlreadyOccupied, "seat is already occupied")
			}
		}
		st.nextBooking++
		b.ID = st.nextBooking
		b.Status = model.BookingActive
		b.LeftAt = nil
		rec := *b
		rec.Venue = nil
		st.bookings[b.ID] = rec
		return nil
	})
}

func (r *Bookings) FindActive(ctx context.Context, userID uint64, kind model.VenueKind) (*model.Booking, error) {
	var out *model.Booking
	err := r.s.do(ctx, func(st *state) error {
		for _, b := range sortedBookings(st) {
			if b.UserID == userID && b.Kind == kind && b.Active() {
				b := b
				out = &b
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *Bookings) GetForUpdate(ctx context.Context, id uint64) (model.Booking, error) {
	var out model.Booking
	err := r.s.do(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return notFound("booking not found")
		}
		out = b
		return nil
	})
	return out, err
}

func (r *Bookings) Complete(ctx context.Context, id uint64, at time.Time) error {
	return r.s.do(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok || !b.Active() {
			return notFound("no active booking to complete")
		}
		b.Status = model.BookingCompleted
		b.LeftAt = &at
		st.bookings[id] = b
		return nil
	})
}

func (r *Bookings) ListActiveByVenueForUpdate(ctx context.Context, venueID uint64) ([]model.Booking, error) {
	var out []model.Booking
	err := r.s.do(ctx, func(st *state) error {
		for _, b := range sortedBookings(st) {
			if b.VenueID == venueID && b.Active() {
				out = append(out, b)
			}
		}
		return nil
	})
	return out, err
}

// ListByUser returns the user's bookings newest first with venue summaries.
func (r *Bookings) ListByUser(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error) {
	out := []model.Booking{}
	err := r.s.do(ctx, func(st *state) error {
		for _, b := range sortedBookings(st) {
			if b.UserID != userID || (status != "" && b.Status != status) {
				continue
			}
			if v, ok := st.venues[b.VenueID]; ok {
				sum := v.Summary()
				b.Venue = &sum
			}
			out = append(out, b)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].BookedAt.Equal(out[j].BookedAt) {
			return out[i].BookedAt.After(out[j].BookedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

// All returns every ledger row ordered by id.
func (r *Bookings) All(ctx context.Context) []model.Booking {
	var out []model.Booking
	_ = r.s.do(ctx, func(st *state) error {
		out = sortedBookings(st)
		return nil
	})
	return out
}

func sortedBookings(st *state) []model.Booking {
	out := make([]model.Booking, 0, len(st.bookings))
	for _, b := range st.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
