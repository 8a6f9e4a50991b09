package model

import (
	"strconv"
	"time"
)

// VenueKind distinguishes libraries from events.  Libraries hand out free
// study seats (one per user at a time); events sell priced seats by row.
type VenueKind string

const (
	VenueLibrary VenueKind = "library"
	VenueEvent   VenueKind = "event"
)

// Valid reports whether k is a known venue kind.
func (k VenueKind) Valid() bool {
	return k == VenueLibrary || k == VenueEvent
}

// Topic is the real-time topic name for a venue of this kind.
func (k VenueKind) Topic(venueID uint64) string {
	return string(k) + "-" + strconv.FormatUint(venueID, 10)
}

// Venue is a library or an event together with its seats.  Library venues
// use Floor; event venues use Description, Category, Location and StartsAt.
//
// Fields:
//
//	ID          – primary key identifier.
//	Kind        – library or event.
//	Name        – library name or event title.
//	TotalSeats  – fixed seat count set at provisioning.
//	Floor       – library floor (e.g. "2nd Floor").
//	Description – event description.
//	Category    – event category (lecture, concert, ...).
//	Location    – event hall.
//	StartsAt    – event start time.
//	Seats       – ordered seats (by row then number).
type Venue struct {
	ID          uint64     `json:"id"`                    // venues.id
	Kind        VenueKind  `json:"kind"`                  // venues.kind
	Name        string     `json:"name"`                  // venues.name
	TotalSeats  int        `json:"totalSeats"`            // venues.total_seats
	Floor       string     `json:"floor,omitempty"`       // venues.floor
	Description string     `json:"description,omitempty"` // venues.description
	Category    string     `json:"category,omitempty"`    // venues.category
	Location    string     `json:"location,omitempty"`    // venues.location
	StartsAt    *time.Time `json:"startsAt,omitempty"`    // venues.starts_at (nullable)
	Seats       []Seat     `json:"seats"`
}

// SeatCount returns the provisioned number of seats.
func (v Venue) SeatCount() int { return v.TotalSeats }

// ListSeats returns the seats in venue order.
func (v Venue) ListSeats() []Seat { return v.Seats }

// OccupiedCount counts seats currently held.
func (v Venue) OccupiedCount() int {
	n := 0
	for _, s := range v.Seats {
		if s.Occupied {
			n++
		}
	}
	return n
}

// Seat finds a seat by locator.
func (v Venue) Seat(loc SeatLocator) (Seat, bool) {
	for _, s := range v.Seats {
		if s.Row == loc.Row && s.Number == loc.Number {
			return s, true
		}
	}
	return Seat{}, false
}

// Topic is the real-time topic for this venue.
func (v Venue) Topic() string { return v.Kind.Topic(v.ID) }

// Summary strips the seat map.
func (v Venue) Summary() VenueSummary {
	return VenueSummary{
		ID:       v.ID,
		Kind:     v.Kind,
		Name:     v.Name,
		Floor:    v.Floor,
		Location: v.Location,
		StartsAt: v.StartsAt,
	}
}

// VenueSummary is the venue detail attached to a booking listing.
type VenueSummary struct {
	ID       uint64     `json:"id"`
	Kind     VenueKind  `json:"kind"`
	Name     string     `json:"name"`
	Floor    string     `json:"floor,omitempty"`
	Location string     `json:"location,omitempty"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
}

// SeatLister is the capability shared by both venue variants.
type SeatLister interface {
	ListSeats() []Seat
	SeatCount() int
}

var _ SeatLister = Venue{}
