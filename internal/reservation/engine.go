// Package reservation is the only writer of seat occupancy and booking
// status.  Every transition runs as one store transaction; deltas and audit
// events go out only after that transaction has committed.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/clock"
	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository"
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type VenueReader interface {
	Get(ctx context.Context, id uint64) (model.Venue, error)
}

type SeatStore interface {
	GetForUpdate(ctx context.Context, venueID uint64, loc model.SeatLocator) (model.Seat, error)
	GetByIDForUpdate(ctx context.Context, seatID uint64) (model.Seat, error)
	Occupy(ctx context.Context, s model.Seat, userID, bookingID uint64, at time.Time) (model.Seat, error)
	Free(ctx context.Context, s model.Seat) (model.Seat, error)
	ListOccupiedForUpdate(ctx context.Context, venueID uint64) ([]model.Seat, error)
}

// Ledger is the booking ledger.  FindActive must be callable inside the
// transaction passed through ctx.
type Ledger interface {
	Append(ctx context.Context, b *model.Booking) error
	FindActive(ctx context.Context, userID uint64, kind model.VenueKind) (*model.Booking, error)
	GetForUpdate(ctx context.Context, id uint64) (model.Booking, error)
	Complete(ctx context.Context, id uint64, at time.Time) error
	ListByUser(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error)
	ListActiveByVenueForUpdate(ctx context.Context, venueID uint64) ([]model.Booking, error)
}

type UserLocker interface {
	LockForUpdate(ctx context.Context, userID uint64) error
}

// Notifier receives committed seat deltas.  Emit must not block.
type Notifier interface {
	Emit(u model.SeatUpdate)
}

// Auditor receives committed booking transitions.  Record must not block.
type Auditor interface {
	Record(b model.Booking, action model.SeatUpdateType)
}

// Deps are the store views the engine works against.
type Deps struct {
	Tx     TxRunner
	Venues VenueReader
	Seats  SeatStore
	Ledger Ledger
	Users  UserLocker
}

type Engine struct {
	deps        Deps
	clock       clock.Clock
	notifier    Notifier
	auditor     Auditor
	log         *logrus.Entry
	maxAttempts int
	txTimeout   time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultTxTimeout   = 10 * time.Second
)

func New(deps Deps, opts ...Option) *Engine {
	e := &Engine{
		deps:        deps,
		clock:       clock.NewSystem(),
		notifier:    nopNotifier{},
		auditor:     nopAuditor{},
		log:         logrus.NewEntry(logrus.StandardLogger()),
		maxAttempts: defaultMaxAttempts,
		txTimeout:   defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithAuditor(a Auditor) Option {
	return func(e *Engine) {
		if a != nil {
			e.auditor = a
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMaxAttempts bounds how often a transaction is re-run after a stale
// seat version or a deadlock.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithTxTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.txTimeout = d
		}
	}
}

// Reserve books the seat at loc in venue venueID for user.  Checks run in
// order: venue and seat exist, seat is free, and for libraries the user has
// no other active library booking.
func (e *Engine) Reserve(ctx context.Context, user model.UserRef, kind model.VenueKind, venueID uint64, loc model.SeatLocator) (model.Booking, error) {
	if !kind.Valid() {
		return model.Booking{}, model.NewError(model.ErrInvalid, "unknown venue kind")
	}
	var (
		booking model.Booking
		seat    model.Seat
	)
	err := e.atomically(ctx, "reserve", func(ctx context.Context) error {
		venue, err := e.deps.Venues.Get(ctx, venueID)
		if err != nil {
			return err
		}
		if venue.Kind != kind {
			return model.NewError(model.ErrNotFound, fmt.Sprintf("%s not found", kind))
		}
		s, err := e.deps.Seats.GetForUpdate(ctx, venueID, loc)
		if err != nil {
			return err
		}
		if s.Occupied {
			return model.NewError(model.ErrAlreadyOccupied, fmt.Sprintf("seat %s is already occupied", s.Label()))
		}
		if kind == model.VenueLibrary {
			if err := e.deps.Users.LockForUpdate(ctx, user.ID); err != nil {
				return err
			}
			active, err := e.deps.Ledger.FindActive(ctx, user.ID, model.VenueLibrary)
			if err != nil {
				return err
			}
			if active != nil {
				return model.NewError(model.ErrDuplicateActiveBooking,
					fmt.Sprintf("you already hold library seat %s; leave it before booking another", active.SeatNumber))
			}
		}

		now := e.clock.Now()
		b := model.Booking{
			UserID:     user.ID,
			Kind:       kind,
			VenueID:    venueID,
			SeatID:     s.ID,
			Seat:       s.Locator(),
			SeatNumber: s.Label(),
			BookedAt:   now,
		}
		if kind == model.VenueEvent {
			b.Price = s.Price
		}
		if err := e.deps.Ledger.Append(ctx, &b); err != nil {
			return err
		}
		if s, err = e.deps.Seats.Occupy(ctx, s, user.ID, b.ID, now); err != nil {
			return err
		}
		summary := venue.Summary()
		b.Venue = &summary
		b.SeatVersion = s.Version
		booking, seat = b, s
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	e.committed(ctx, booking, model.SeatUpdate{
		Type:       model.SeatBooked,
		VenueKind:  kind,
		VenueID:    venueID,
		SeatID:     seat.ID,
		Seat:       seat.Locator(),
		SeatNumber: seat.Label(),
		BookingID:  booking.ID,
		UserID:     user.ID,
		UserName:   user.Name,
		Timestamp:  booking.BookedAt,
		Version:    seat.Version,
	})
	return booking, nil
}

// Release completes the user's active booking and frees its seat.  kind
// restricts the booking type; empty accepts both.  A seat that is missing
// or no longer held by this booking is left alone and the booking is still
// completed.
func (e *Engine) Release(ctx context.Context, user model.UserRef, bookingID uint64, kind model.VenueKind) (model.Booking, error) {
	var (
		booking model.Booking
		seat    model.Seat
		freed   bool
	)
	err := e.atomically(ctx, "release", func(ctx context.Context) error {
		freed = false
		b, err := e.deps.Ledger.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != user.ID {
			return model.NewError(model.ErrNotAuthorized, "booking belongs to another user")
		}
		if kind != "" && b.Kind != kind {
			return model.NewError(model.ErrNotFound, "booking not found")
		}
		if !b.Active() {
			return model.NewError(model.ErrNotFound, "booking already completed")
		}

		s, err := e.deps.Seats.GetByIDForUpdate(ctx, b.SeatID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			logging.FromContext(ctx).WithField("booking_id", b.ID).Info("releasing booking whose seat no longer exists")
		case err != nil:
			return err
		case s.HeldBy(b.ID):
			if s, err = e.deps.Seats.Free(ctx, s); err != nil {
				return err
			}
			seat, freed = s, true
			b.SeatVersion = s.Version
		}

		now := e.clock.Now()
		if err := e.deps.Ledger.Complete(ctx, b.ID, now); err != nil {
			return err
		}
		b.Status = model.BookingCompleted
		b.LeftAt = &now
		booking = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	if freed {
		e.committed(ctx, booking, releasedUpdate(booking, seat, user.Name))
	} else {
		e.auditor.Record(booking, model.SeatReleased)
	}
	return booking, nil
}

// ListBookings returns the user's bookings, newest first.  An empty status
// returns the whole history.
func (e *Engine) ListBookings(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error) {
	out, err := e.deps.Ledger.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, e.classify(ctx, "list bookings", err)
	}
	return out, nil
}

// ResetVenue frees every seat of a venue and completes the active bookings
// that referenced it.  It returns the number of bookings completed.
func (e *Engine) ResetVenue(ctx context.Context, venueID uint64) (int, error) {
	var (
		completed []model.Booking
		updates   []model.SeatUpdate
	)
	err := e.atomically(ctx, "reset venue", func(ctx context.Context) error {
		completed, updates = nil, nil
		venue, err := e.deps.Venues.Get(ctx, venueID)
		if err != nil {
			return err
		}
		active, err := e.deps.Ledger.ListActiveByVenueForUpdate(ctx, venueID)
		if err != nil {
			return err
		}
		seats, err := e.deps.Seats.ListOccupiedForUpdate(ctx, venueID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		byID := make(map[uint64]model.Booking, len(active))
		for _, b := range active {
			if err := e.deps.Ledger.Complete(ctx, b.ID, now); err != nil {
				return err
			}
			b.Status = model.BookingCompleted
			b.LeftAt = &now
			byID[b.ID] = b
			completed = append(completed, b)
		}
		for _, s := range seats {
			var holder model.Booking
			if s.BookingID != nil {
				holder = byID[*s.BookingID]
			}
			if holder.ID == 0 {
				holder = model.Booking{Kind: venue.Kind, VenueID: venueID, LeftAt: &now}
				if s.OccupantID != nil {
					holder.UserID = *s.OccupantID
				}
			}
			freed, err := e.deps.Seats.Free(ctx, s)
			if err != nil {
				return err
			}
			updates = append(updates, releasedUpdate(holder, freed, ""))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, u := range updates {
		e.notifier.Emit(u)
	}
	for _, b := range completed {
		e.auditor.Record(b, model.SeatReleased)
	}
	return len(completed), nil
}

func releasedUpdate(b model.Booking, s model.Seat, userName string) model.SeatUpdate {
	at := time.Time{}
	if b.LeftAt != nil {
		at = *b.LeftAt
	}
	return model.SeatUpdate{
		Type:       model.SeatReleased,
		VenueKind:  b.Kind,
		VenueID:    s.VenueID,
		SeatID:     s.ID,
		Seat:       s.Locator(),
		SeatNumber: s.Label(),
		BookingID:  b.ID,
		UserID:     b.UserID,
		UserName:   userName,
		Timestamp:  at,
		Version:    s.Version,
	}
}

// committed fans a transition out after commit.  Neither sink can fail the
// caller.
func (e *Engine) committed(ctx context.Context, b model.Booking, u model.SeatUpdate) {
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id": b.ID,
		"venue":      u.Topic(),
		"seat":       u.SeatNumber,
		"type":       u.Type,
		"version":    u.Version,
	}).Info("seat transition committed")
	e.notifier.Emit(u)
	e.auditor.Record(b, u.Type)
}

// atomically runs fn in a store transaction detached from the caller's
// cancellation: once started, a transition runs to a definite outcome.
// Stale seat versions and deadlocks re-run fn up to maxAttempts times.
func (e *Engine) atomically(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.txTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = e.deps.Tx.WithTx(ctx, fn)
		if err == nil || !repository.IsRetryable(err) {
			break
		}
		logging.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).Debug("retrying contended transaction")
	}
	if err != nil {
		return e.classify(ctx, op, err)
	}
	return nil
}

// classify passes taxonomy errors through and turns everything else into
// Unavailable.
func (e *Engine) classify(ctx context.Context, op string, err error) error {
	if model.Kind(err) != nil {
		return err
	}
	if repository.IsRetryable(err) {
		return model.Errorf(model.ErrUnavailable, err, "%s: seat is busy, try again", op)
	}
	logging.FromContext(ctx).WithError(err).WithField("op", op).Error("seat store failure")
	return model.Unavailable(fmt.Errorf("%s: %w", op, err))
}

type nopNotifier struct{}

func (nopNotifier) Emit(model.SeatUpdate) {}

type nopAuditor struct{}

func (nopAuditor) Record(model.Booking, model.SeatUpdateType) {}
