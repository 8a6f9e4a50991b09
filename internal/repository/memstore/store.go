// Package memstore is an in-memory seat store and booking ledger with the
// same method sets as the MySQL repositories.  A transaction holds the
// store mutex for its whole duration and restores a snapshot on error, so
// every transaction is serializable.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

type txKey struct{}

type state struct {
	venues   map[uint64]model.Venue // without seats
	seats    map[uint64]model.Seat
	bookings map[uint64]model.Booking
	users    map[uint64]model.User
	tokens   map[string]model.RefreshToken

	nextVenue, nextSeat, nextBooking, nextUser, nextToken uint64
}

func newState() *state {
	return &state{
		venues:   map[uint64]model.Venue{},
		seats:    map[uint64]model.Seat{},
		bookings: map[uint64]model.Booking{},
		users:    map[uint64]model.User{},
		tokens:   map[string]model.RefreshToken{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.venues = make(map[uint64]model.Venue, len(s.venues))
	for k, v := range s.venues {
		c.venues[k] = v
	}
	c.seats = make(map[uint64]model.Seat, len(s.seats))
	for k, v := range s.seats {
		c.seats[k] = v
	}
	c.bookings = make(map[uint64]model.Booking, len(s.bookings))
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	c.users = make(map[uint64]model.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.tokens = make(map[string]model.RefreshToken, len(s.tokens))
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return &c
}

// seatsOf returns a venue's seats ordered by row then number.
func (s *state) seatsOf(venueID uint64) []model.Seat {
	out := []model.Seat{}
	for _, seat := range s.seats {
		if seat.VenueID == venueID {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Number < out[j].Number
	})
	return out
}

// Store is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

// WithTx runs fn with exclusive access to the store.  Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn against the live state, locking unless ctx already holds a
// transaction of this store.
func (s *Store) do(ctx context.Context, fn func(*state) error) error {
	if s.inTx(ctx) {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// Venues returns the venue repository view.
func (s *Store) Venues() *Venues { return &Venues{s} }

// Seats returns the seat repository view.
func (s *Store) Seats() *Seats { return &Seats{s} }

// Bookings returns the booking ledger view.
func (s *Store) Bookings() *Bookings { return &Bookings{s} }

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s} }

// Tokens returns the refresh token repository view.
func (s *Store) Tokens() *Tokens { return &Tokens{s} }

func notFound(msg string) error { return model.NewError(model.ErrNotFound, msg) }
