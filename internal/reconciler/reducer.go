// Package reconciler keeps a client's view of seat state convergent with
// the server.  All state changes go through Reduce, a pure function over
// three event kinds: the confirmed result of the user's own action, a
// delta pushed by the server, and a full refetch that replaces everything.
package reconciler

import (
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// State is an immutable snapshot; Reduce never modifies its input.
type State struct {
	Venues      map[string]model.VenueSummary // by topic
	Seats       map[model.SeatKey]model.Seat
	Bookings    map[uint64]model.Booking // the user's active bookings
	RefreshedAt time.Time
}

// NewState returns an empty state.
func NewState() State {
	return State{
		Venues:   map[string]model.VenueSummary{},
		Seats:    map[model.SeatKey]model.Seat{},
		Bookings: map[uint64]model.Booking{},
	}
}

// Seat looks up one seat.
func (s State) Seat(kind model.VenueKind, venueID uint64, loc model.SeatLocator) (model.Seat, bool) {
	seat, ok := s.Seats[model.SeatKey{VenueKind: kind, VenueID: venueID, Seat: loc}]
	return seat, ok
}

// Occupied counts occupied seats of a venue.
func (s State) Occupied(kind model.VenueKind, venueID uint64) int {
	n := 0
	for k, seat := range s.Seats {
		if k.VenueKind == kind && k.VenueID == venueID && seat.Occupied {
			n++
		}
	}
	return n
}

func (s State) clone() State {
	c := State{
		Venues:      make(map[string]model.VenueSummary, len(s.Venues)),
		Seats:       make(map[model.SeatKey]model.Seat, len(s.Seats)),
		Bookings:    make(map[uint64]model.Booking, len(s.Bookings)),
		RefreshedAt: s.RefreshedAt,
	}
	for k, v := range s.Venues {
		c.Venues[k] = v
	}
	for k, v := range s.Seats {
		c.Seats[k] = v
	}
	for k, v := range s.Bookings {
		c.Bookings[k] = v
	}
	return c
}

// Event is one input to Reduce.
type Event interface{ event() }

// LocalApply carries the server's confirmed response to the user's own book
// or release request.
type LocalApply struct {
	Booking model.Booking
}

// RemoteDelta is a seat update received over the real-time channel.
type RemoteDelta struct {
	Update model.SeatUpdate
}

// FullRefetch is the complete server state at At.
type FullRefetch struct {
	Venues   []model.Venue
	Bookings []model.Booking
	At       time.Time
}

func (LocalApply) event()  {}
func (RemoteDelta) event() {}
func (FullRefetch) event() {}

// Reduce returns the state after e.  Events that carry nothing new (an echo
// of the user's own action, a duplicate or out of date delta, a delta for a
// seat not on screen) return s unchanged.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case FullRefetch:
		return refetched(e)
	case RemoteDelta:
		return applyDelta(s, e.Update)
	case LocalApply:
		return applyLocal(s, e.Booking)
	}
	return s
}

func refetched(e FullRefetch) State {
	next := NewState()
	next.RefreshedAt = e.At
	for _, v := range e.Venues {
		next.Venues[v.Topic()] = v.Summary()
		for _, seat := range v.Seats {
			key := model.SeatKey{VenueKind: v.Kind, VenueID: v.ID, Seat: seat.Locator()}
			next.Seats[key] = seat
		}
	}
	for _, b := range e.Bookings {
		if b.Active() {
			next.Bookings[b.ID] = b
		}
	}
	return next
}

func applyDelta(s State, u model.SeatUpdate) State {
	key := u.SeatKey()
	seat, ok := s.Seats[key]
	if !ok || u.Version <= seat.Version {
		return s
	}
	next := s.clone()
	switch u.Type {
	case model.SeatBooked:
		occupant, at := u.UserID, u.Timestamp
		seat.Occupied = true
		seat.OccupantID = &occupant
		seat.OccupiedAt = &at
	case model.SeatReleased:
		seat.Occupied = false
		seat.OccupantID = nil
		seat.OccupiedAt = nil
		delete(next.Bookings, u.BookingID)
	default:
		return s
	}
	seat.Version = u.Version
	next.Seats[key] = seat
	return next
}

func applyLocal(s State, b model.Booking) State {
	next := s.clone()
	key := model.SeatKey{VenueKind: b.Kind, VenueID: b.VenueID, Seat: b.Seat}
	seat, known := next.Seats[key]

	if b.Active() {
		next.Bookings[b.ID] = b
		if known && (b.SeatVersion == 0 || b.SeatVersion > seat.Version) {
			occupant, at := b.UserID, b.BookedAt
			seat.Occupied = true
			seat.OccupantID = &occupant
			seat.OccupiedAt = &at
			if b.SeatVersion > seat.Version {
				seat.Version = b.SeatVersion
			}
			next.Seats[key] = seat
		}
		return next
	}

	delete(next.Bookings, b.ID)
	if known && b.SeatVersion > seat.Version {
		seat.Occupied = false
		seat.OccupantID = nil
		seat.OccupiedAt = nil
		seat.Version = b.SeatVersion
		next.Seats[key] = seat
	}
	return next
}
