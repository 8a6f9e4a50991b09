package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository"
)

// Seats mirrors repository.SeatRepo.  The *ForUpdate reads rely on the
// transaction mutex instead of row locks.
type Seats struct{ s *Store }

func (r *Seats) GetForUpdate(ctx context.Context, venueID uint64, loc model.SeatLocator) (model.Seat, error) {
	var out model.Seat
	err := r.s.do(ctx, func(st *state) error {
		for _, seat := range st.seats {
			if seat.VenueID == venueID && seat.Row == loc.Row && seat.Number == loc.Number {
				out = seat
				return nil
			}
		}
		return notFound(fmt.Sprintf("seat %s not found", loc))
	})
	return out, err
}

func (r *Seats) GetByIDForUpdate(ctx context.Context, seatID uint64) (model.Seat, error) {
	var out model.Seat
	err := r.s.do(ctx, func(st *state) error {
		seat, ok := st.seats[seatID]
		if !ok {
			return notFound("seat not found")
		}
		out = seat
		return nil
	})
	return out, err
}

func (r *Seats) Occupy(ctx context.Context, seat model.Seat, userID, bookingID uint64, at time.Time) (model.Seat, error) {
	err := r.s.do(ctx, func(st *state) error {
		cur, ok := st.seats[seat.ID]
		if !ok || cur.Version != seat.Version || cur.Occupied {
			return repository.ErrStale
		}
		cur.Occupied = true
		cur.OccupantID = &userID
		cur.OccupiedAt = &at
		cur.BookingID = &bookingID
		cur.Version++
		st.seats[seat.ID] = cur
		seat = cur
		return nil
	})
	if err != nil {
		return model.Seat{}, err
	}
	return seat, nil
}

func (r *Seats) Free(ctx context.Context, seat model.Seat) (model.Seat, error) {
	err := r.s.do(ctx, func(st *state) error {
		cur, ok := st.seats[seat.ID]
		if !ok || cur.Version != seat.Version {
			return repository.ErrStale
		}
		cur.Occupied = false
		cur.OccupantID = nil
		cur.OccupiedAt = nil
		cur.BookingID = nil
		cur.Version++
		st.seats[seat.ID] = cur
		seat = cur
		return nil
	})
	if err != nil {
		return model.Seat{}, err
	}
	return seat, nil
}

func (r *Seats) ListByVenue(ctx context.Context, venueID uint64) ([]model.Seat, error) {
	var out []model.Seat
	err := r.s.do(ctx, func(st *state) error {
		out = st.seatsOf(venueID)
		return nil
	})
	return out, err
}

func (r *Seats) ListOccupiedForUpdate(ctx context.Context, venueID uint64) ([]model.Seat, error) {
	var out []model.Seat
	err := r.s.do(ctx, func(st *state) error {
		for _, seat := range st.seatsOf(venueID) {
			if seat.Occupied {
				out = append(out, seat)
			}
		}
		return nil
	})
	return out, err
}
