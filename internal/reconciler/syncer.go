package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/campus-seat-reservation/internal/clock"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Syncer owns one client's State.  A single goroutine reduces events from
// three sources: the websocket stream, a periodic full refetch, and the
// results of Book and Release.
type Syncer struct {
	api      *APIClient
	interval time.Duration
	clock    clock.Clock
	dialer   *websocket.Dialer
	log      *logrus.Entry

	events    chan Event
	refresh   chan struct{}
	state     atomic.Pointer[State]
	connected atomic.Bool
	refetches atomic.Uint64
}

type SyncOption func(*Syncer)

// WithInterval sets the full refetch period.
func WithInterval(d time.Duration) SyncOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(c clock.Clock) SyncOption {
	return func(s *Syncer) { s.clock = c }
}

func WithLogger(l *logrus.Entry) SyncOption {
	return func(s *Syncer) { s.log = l }
}

func WithDialer(d *websocket.Dialer) SyncOption {
	return func(s *Syncer) { s.dialer = d }
}

func NewSyncer(api *APIClient, opts ...SyncOption) *Syncer {
	s := &Syncer{
		api:      api,
		interval: 30 * time.Second,
		clock:    clock.NewSystem(),
		dialer:   websocket.DefaultDialer,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		events:   make(chan Event, 256),
		refresh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	st := NewState()
	s.state.Store(&st)
	return s
}

// Snapshot returns the current state.  Callers must not modify it.
func (s *Syncer) Snapshot() State { return *s.state.Load() }

// Connected reports whether the websocket stream is up.
func (s *Syncer) Connected() bool { return s.connected.Load() }

// Refetches counts completed full refetches.
func (s *Syncer) Refetches() uint64 { return s.refetches.Load() }

// Run blocks until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.reduce(ctx) })
	g.Go(func() error { return s.poll(ctx) })
	g.Go(func() error { return s.listen(ctx) })
	return g.Wait()
}

// Refresh asks for a full refetch ahead of the next tick.
func (s *Syncer) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Book reserves a seat and applies the server's answer locally.
func (s *Syncer) Book(ctx context.Context, kind model.VenueKind, venueID uint64, seat string) (model.Booking, error) {
	var (
		b   model.Booking
		err error
	)
	switch kind {
	case model.VenueLibrary:
		b, err = s.api.BookLibrary(ctx, venueID, seat)
	case model.VenueEvent:
		b, err = s.api.BookEvent(ctx, venueID, seat)
	default:
		return model.Booking{}, model.NewError(model.ErrInvalid, fmt.Sprintf("unknown venue kind %q", kind))
	}
	if err != nil {
		return model.Booking{}, err
	}
	s.emit(ctx, LocalApply{Booking: b})
	return b, nil
}

// Release gives up a booking and applies the server's answer locally.
func (s *Syncer) Release(ctx context.Context, kind model.VenueKind, bookingID uint64) (model.Booking, error) {
	var (
		b   model.Booking
		err error
	)
	if kind == model.VenueEvent {
		b, err = s.api.LeaveEvent(ctx, bookingID)
	} else {
		b, err = s.api.LeaveLibrary(ctx, bookingID)
	}
	if err != nil {
		return model.Booking{}, err
	}
	s.emit(ctx, LocalApply{Booking: b})
	return b, nil
}

func (s *Syncer) emit(ctx context.Context, e Event) {
	select {
	case s.events <- e:
	case <-ctx.Done():
	}
}

func (s *Syncer) reduce(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.events:
			next := Reduce(*s.state.Load(), e)
			s.state.Store(&next)
		}
	}
}

func (s *Syncer) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.refetch(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("refetch failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.refresh:
		}
	}
}

func (s *Syncer) refetch(ctx context.Context) error {
	libs, err := s.api.Libraries(ctx)
	if err != nil {
		return fmt.Errorf("libraries: %w", err)
	}
	events, err := s.api.Events(ctx)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	var bookings []model.Booking
	if s.api.Token() != "" {
		bookings, err = s.api.Bookings(ctx)
		switch {
		case errors.Is(err, model.ErrUnauthenticated):
			s.log.Warn("session expired, continuing without bookings")
		case err != nil:
			return fmt.Errorf("bookings: %w", err)
		}
	}
	s.emit(ctx, FullRefetch{Venues: append(libs, events...), Bookings: bookings, At: s.clock.Now()})
	s.refetches.Add(1)
	return nil
}

// listen keeps a websocket open, reconnecting with backoff.  Every new
// connection triggers a refetch since deltas may have been missed.
func (s *Syncer) listen(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := s.stream(ctx)
		if s.connected.Swap(false) {
			backoff = minBackoff
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.WithError(err).WithField("retry_in", backoff).Debug("websocket stream ended")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Syncer) stream(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.api.WebsocketURL(), nil)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	s.connected.Store(true)
	s.Refresh()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f struct {
			Event string            `json:"event"`
			Data  *model.SeatUpdate `json:"data"`
		}
		if err := json.Unmarshal(data, &f); err != nil || f.Data == nil {
			continue
		}
		switch f.Event {
		case "seat-update", "venue-seat-update":
			s.emit(ctx, RemoteDelta{Update: *f.Data})
		}
	}
}
