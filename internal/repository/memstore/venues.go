package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// Venues mirrors repository.VenueRepo.
type Venues struct{ s *Store }

func (r *Venues) Create(ctx context.Context, v *model.Venue) error {
	if len(v.Seats) != v.TotalSeats {
		return model.NewError(model.ErrInvalid, fmt.Sprintf("venue declares %d seats but has %d", v.TotalSeats, len(v.Seats)))
	}
	return r.s.do(ctx, func(st *state) error {
		seen := map[model.SeatLocator]bool{}
		for _, seat := range v.Seats {
			if seen[seat.Locator()] {
				return model.NewError(model.ErrInvalid, "duplicate seat "+seat.Label())
			}
			seen[seat.Locator()] = true
		}
		st.nextVenue++
		v.ID = st.nextVenue
		header := *v
		header.Seats = nil
		st.venues[v.ID] = header
		for i := range v.Seats {
			st.nextSeat++
			seat := model.Seat{
				ID:      st.nextSeat,
				VenueID: v.ID,
				Row:     v.Seats[i].Row,
				Number:  v.Seats[i].Number,
				Price:   v.Seats[i].Price,
			}
			st.seats[seat.ID] = seat
		}
		v.Seats = st.seatsOf(v.ID)
		return nil
	})
}

func (r *Venues) Get(ctx context.Context, id uint64) (model.Venue, error) {
	var out model.Venue
	err := r.s.do(ctx, func(st *state) error {
		v, ok := st.venues[id]
		if !ok {
			return notFound("venue not found")
		}
		out = v
		return nil
	})
	return out, err
}

func (r *Venues) GetWithSeats(ctx context.Context, id uint64) (model.Venue, error) {
	var out model.Venue
	err := r.s.do(ctx, func(st *state) error {
		v, ok := st.venues[id]
		if !ok {
			return notFound("venue not found")
		}
		v.Seats = st.seatsOf(id)
		out = v
		return nil
	})
	return out, err
}

func (r *Venues) List(ctx context.Context, kind model.VenueKind, from *time.Time) ([]model.Venue, error) {
	out := []model.Venue{}
	err := r.s.do(ctx, func(st *state) error {
		for _, v := range st.venues {
			if v.Kind != kind {
				continue
			}
			if from != nil && (v.StartsAt == nil || v.StartsAt.Before(*from)) {
				continue
			}
			v.Seats = st.seatsOf(v.ID)
			out = append(out, v)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartsAt, out[j].StartsAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// Delete removes the venue and its seats; bookings stay in the ledger.
func (r *Venues) Delete(ctx context.Context, id uint64) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.venues[id]; !ok {
			return notFound("venue not found")
		}
		delete(st.venues, id)
		for sid, seat := range st.seats {
			if seat.VenueID == id {
				delete(st.seats, sid)
			}
		}
		return nil
	})
}

func (r *Venues) Count(ctx context.Context) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		n = len(st.venues)
		return nil
	})
	return n, err
}
