package model

import "time"

// SeatUpdateType says which transition a delta describes.
type SeatUpdateType string

const (
	SeatBooked   SeatUpdateType = "booked"
	SeatReleased SeatUpdateType = "released"
)

// SeatUpdate is the delta pushed to live clients after a committed
// transition.  Version is the seat version after the transition, so
// receivers can discard stale or duplicate deltas for the same seat.
type SeatUpdate struct {
	Type       SeatUpdateType `json:"type"`
	VenueKind  VenueKind      `json:"venueKind"`
	VenueID    uint64         `json:"venueId"`
	SeatID     uint64         `json:"seatId"`
	Seat       SeatLocator    `json:"seatLocator"`
	SeatNumber string         `json:"seatNumber"`
	BookingID  uint64         `json:"bookingId"`
	UserID     uint64         `json:"userId"`
	UserName   string         `json:"userName,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    uint64         `json:"version"`
}

// Topic is the venue topic the delta belongs to.
func (u SeatUpdate) Topic() string { return u.VenueKind.Topic(u.VenueID) }

// SeatKey identifies the seat across venues.
func (u SeatUpdate) SeatKey() SeatKey {
	return SeatKey{VenueKind: u.VenueKind, VenueID: u.VenueID, Seat: u.Seat}
}

// SeatKey is a globally unique seat address.
type SeatKey struct {
	VenueKind VenueKind
	VenueID   uint64
	Seat      SeatLocator
}
