package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-seat-reservation/internal/clock"
	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/middleware"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/campus-seat-reservation/internal/reservation"
	"github.com/iliyamo/campus-seat-reservation/internal/utils"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

var testCfg = config.Config{JWTSecret: "s3cret", AccessTTLMin: 15, RefreshTTLDays: 1, BcryptCost: 4}

type fixture struct {
	e     *echo.Echo
	store *memstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	engine := reservation.New(reservation.Deps{
		Tx: store, Venues: store.Venues(), Seats: store.Seats(), Ledger: store.Bookings(), Users: store.Users(),
	}, reservation.WithClock(clock.NewFixed(now)), reservation.WithLogger(logging.Discard()))

	e := echo.New()
	auth := NewAuthHandler(testCfg, store, store.Users(), store.Tokens())
	venues := NewVenueHandler(store.Venues(), engine, clock.NewFixed(now))
	dir := NewDirectoryHandler(store.Users())
	admin := NewAdminHandler(store, store.Venues(), engine)
	jwt := middleware.JWTAuth(testCfg.JWTSecret)

	e.POST("/auth/register", auth.Register)
	e.POST("/auth/login", auth.Login)
	e.POST("/auth/refresh", auth.Refresh)
	e.POST("/auth/logout", auth.Logout)
	e.GET("/auth/profile", auth.Profile, jwt)
	e.PUT("/auth/skills", auth.UpdateSkills, jwt)
	e.GET("/venues/libraries", venues.Libraries)
	e.GET("/venues/libraries/:id/status", venues.LibraryStatus)
	e.POST("/venues/libraries/book", venues.BookLibrary, jwt)
	e.DELETE("/venues/libraries/leave/:bookingId", venues.LeaveLibrary, jwt)
	e.GET("/venues/libraries/bookings", venues.Bookings, jwt)
	e.GET("/venues/events", venues.Events)
	e.GET("/venues/events/:id", venues.Event)
	e.POST("/venues/events/book", venues.BookEvent, jwt)
	e.DELETE("/venues/events/leave/:bookingId", venues.LeaveEvent, jwt)
	e.GET("/directory/search", dir.Search, jwt)
	e.GET("/directory/users", dir.Users, jwt)
	e.POST("/admin/venues", admin.CreateVenue, jwt, middleware.RequireRole(model.RoleAdmin))
	e.POST("/admin/venues/:id/reset", admin.ResetVenue, jwt, middleware.RequireRole(model.RoleAdmin))
	e.DELETE("/admin/venues/:id", admin.DeleteVenue, jwt, middleware.RequireRole(model.RoleAdmin))
	return &fixture{e: e, store: store}
}

func (f *fixture) call(t *testing.T, method, path, token string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = strings.NewReader(string(bs))
	} else {
		rdr = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (f *fixture) user(t *testing.T, name, role string, skills ...string) (model.UserRef, string) {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.Users().Create(ctx, name, strings.ToLower(name)+"@campus.edu", "password", role, 4)
	require.NoError(t, err)
	if len(skills) > 0 {
		require.NoError(t, f.store.Users().SetSkills(ctx, id, skills))
	}
	ref := model.UserRef{ID: id, Name: name, Role: role}
	tok, err := utils.NewAccessToken(testCfg.JWTSecret, ref, 5)
	require.NoError(t, err)
	return ref, tok.Token
}

func (f *fixture) venue(t *testing.T, v model.Venue) model.Venue {
	t.Helper()
	v.TotalSeats = len(v.Seats)
	require.NoError(t, f.store.Venues().Create(context.Background(), &v))
	return v
}

type errBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	ClearToken bool   `json:"clear_token"`
}

type bookingBody struct {
	Message string        `json:"message"`
	Booking model.Booking `json:"booking"`
}

func TestLibraryFlow(t *testing.T) {
	f := newFixture(t)
	lib := f.venue(t, model.Venue{Kind: model.VenueLibrary, Name: "Central", Seats: model.NumberedSeats(3)})
	_, alice := f.user(t, "Alice", model.RoleStudent)
	_, bob := f.user(t, "Bob", model.RoleStudent)

	var booked bookingBody
	rec := f.call(t, http.MethodPost, "/venues/libraries/book", alice,
		map[string]any{"libraryId": lib.ID, "seatNumber": 2}, &booked)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2", booked.Booking.SeatNumber)
	assert.Equal(t, model.BookingActive, booked.Booking.Status)

	var eb errBody
	rec = f.call(t, http.MethodPost, "/venues/libraries/book", bob,
		map[string]any{"libraryId": lib.ID, "seatNumber": "2"}, &eb)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeAlreadyOccupied, eb.Code)

	rec = f.call(t, http.MethodPost, "/venues/libraries/book", alice,
		map[string]any{"libraryId": lib.ID, "seatNumber": "3"}, &eb)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeDuplicateActiveBooking, eb.Code)

	var status libraryStatusResp
	f.call(t, http.MethodGet, "/venues/libraries/"+itoa(lib.ID)+"/status", "", nil, &status)
	assert.Equal(t, 3, status.TotalSeats)
	assert.Equal(t, 1, status.OccupiedSeats)
	assert.Equal(t, 2, status.AvailableSeats)

	var mine []model.Booking
	f.call(t, http.MethodGet, "/venues/libraries/bookings", alice, nil, &mine)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Venue)
	assert.Equal(t, "Central", mine[0].Venue.Name)

	rec = f.call(t, http.MethodDelete, "/venues/libraries/leave/"+itoa(booked.Booking.ID), bob, nil, &eb)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, model.CodeNotAuthorized, eb.Code)

	var left bookingBody
	rec = f.call(t, http.MethodDelete, "/venues/libraries/leave/"+itoa(booked.Booking.ID), alice, nil, &left)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.BookingCompleted, left.Booking.Status)

	rec = f.call(t, http.MethodDelete, "/venues/libraries/leave/"+itoa(booked.Booking.ID), alice, nil, &eb)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.call(t, http.MethodPost, "/venues/libraries/book", bob,
		map[string]any{"libraryId": lib.ID, "seatNumber": "2"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEventFlow(t *testing.T) {
	f := newFixture(t)
	later := now.Add(48 * time.Hour)
	past := now.Add(-time.Hour)
	ev := f.venue(t, model.Venue{Kind: model.VenueEvent, Name: "Concert", StartsAt: &later,
		Seats: []model.Seat{
			{Row: "A", Number: 1, Price: decimal.NewFromInt(150)},
			{Row: "B", Number: 1, Price: decimal.NewFromInt(100)},
		}})
	f.venue(t, model.Venue{Kind: model.VenueEvent, Name: "Yesterday", StartsAt: &past,
		Seats: model.RowSeats(2, 2, nil)})
	_, tok := f.user(t, "Carol", model.RoleStudent)

	var events []model.Venue
	f.call(t, http.MethodGet, "/venues/events", "", nil, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "Concert", events[0].Name)

	var booked bookingBody
	rec := f.call(t, http.MethodPost, "/venues/events/book", tok,
		map[string]any{"eventId": ev.ID, "seatId": "A1"}, &booked)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, booked.Booking.Price.Equal(decimal.NewFromInt(150)))

	var eb errBody
	rec = f.call(t, http.MethodPost, "/venues/events/book", tok,
		map[string]any{"eventId": ev.ID, "seatId": "A1"}, &eb)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeAlreadyOccupied, eb.Code)

	// numeric seat ids resolve through the seat map; events are not exclusive
	rec = f.call(t, http.MethodPost, "/venues/events/book", tok,
		map[string]any{"eventId": ev.ID, "seatId": ev.Seats[1].ID}, &booked)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "B1", booked.Booking.SeatNumber)

	rec = f.call(t, http.MethodPost, "/venues/events/book", tok,
		map[string]any{"eventId": ev.ID, "seatId": 99999}, &eb)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var detail model.Venue
	f.call(t, http.MethodGet, "/venues/events/"+itoa(ev.ID), "", nil, &detail)
	assert.Equal(t, 2, detail.OccupiedCount())

	rec = f.call(t, http.MethodDelete, "/venues/libraries/leave/"+itoa(booked.Booking.ID), tok, nil, &eb)
	assert.Equal(t, http.StatusNotFound, rec.Code, "library route must not release event bookings")
	rec = f.call(t, http.MethodDelete, "/venues/events/leave/"+itoa(booked.Booking.ID), tok, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestKindMismatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	lib := f.venue(t, model.Venue{Kind: model.VenueLibrary, Name: "Central", Seats: model.NumberedSeats(1)})

	rec := f.call(t, http.MethodGet, "/venues/events/"+itoa(lib.ID), "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.call(t, http.MethodGet, "/venues/libraries/999/status", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.call(t, http.MethodGet, "/venues/libraries/abc/status", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookRequiresAuth(t *testing.T) {
	f := newFixture(t)
	var eb errBody
	rec := f.call(t, http.MethodPost, "/venues/libraries/book", "", map[string]any{"libraryId": 1, "seatNumber": "1"}, &eb)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, eb.ClearToken)
	assert.Equal(t, model.CodeUnauthenticated, eb.Code)

	_, tok := f.user(t, "Dan", model.RoleStudent)
	rec = f.call(t, http.MethodPost, "/venues/libraries/book", tok, map[string]any{"libraryId": 1}, &eb)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.CodeInvalid, eb.Code)
}

func TestAuthLifecycle(t *testing.T) {
	f := newFixture(t)

	var reg authResp
	rec := f.call(t, http.MethodPost, "/auth/register", "",
		registerReq{Name: "Eve", Email: " Eve@Campus.edu ", Password: "hunter22", Role: "ADMIN"}, &reg)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "eve@campus.edu", reg.User.Email)
	assert.Equal(t, model.RoleStudent, reg.User.Role, "admin signup is off")

	rec = f.call(t, http.MethodPost, "/auth/register", "",
		registerReq{Name: "Eve", Email: "eve@campus.edu", Password: "hunter22"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var eb errBody
	rec = f.call(t, http.MethodPost, "/auth/login", "", loginReq{Email: "eve@campus.edu", Password: "nope"}, &eb)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, eb.ClearToken)

	var login authResp
	rec = f.call(t, http.MethodPost, "/auth/login", "", loginReq{Email: "eve@campus.edu", Password: "hunter22"}, &login)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Eve", login.User.Name)

	var refreshed authResp
	rec = f.call(t, http.MethodPost, "/auth/refresh", "", refreshReq{RefreshToken: login.Refresh.Token}, &refreshed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, login.Refresh.Token, refreshed.Refresh.Token)

	rec = f.call(t, http.MethodPost, "/auth/refresh", "", refreshReq{RefreshToken: login.Refresh.Token}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rotated token is revoked")

	var prof profileResp
	rec = f.call(t, http.MethodPut, "/auth/skills", refreshed.Access.Token,
		skillsReq{Skills: []string{" Go ", "go", "SQL", ""}}, &prof)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"Go", "SQL"}, prof.Skills)

	rec = f.call(t, http.MethodGet, "/auth/profile", refreshed.Access.Token, nil, &prof)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eve@campus.edu", prof.Email)

	rec = f.call(t, http.MethodPost, "/auth/logout", refreshed.Access.Token, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.call(t, http.MethodPost, "/auth/refresh", "", refreshReq{RefreshToken: refreshed.Refresh.Token}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDirectorySearch(t *testing.T) {
	f := newFixture(t)
	_, me := f.user(t, "Frank", model.RoleStudent, "Golang")
	f.user(t, "Grace", model.RoleStudent, "golang", "Rust")
	f.user(t, "Heidi", model.RoleStudent, "Painting")

	var peers []peer
	rec := f.call(t, http.MethodGet, "/directory/search?skill=GO", me, nil, &peers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, peers, 1)
	assert.Equal(t, "Grace", peers[0].Name)

	rec = f.call(t, http.MethodGet, "/directory/search?skill=cobol", me, nil, &peers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, peers)

	rec = f.call(t, http.MethodGet, "/directory/search", me, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDirectoryUsersExcludesCaller(t *testing.T) {
	f := newFixture(t)
	_, me := f.user(t, "Frank", model.RoleStudent, "Golang")
	f.user(t, "Grace", model.RoleStudent, "Rust", "golang")
	f.user(t, "Alan", model.RoleStudent)

	var peers []peer
	rec := f.call(t, http.MethodGet, "/directory/users", me, nil, &peers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, peers, 2)
	assert.Equal(t, "Alan", peers[0].Name)
	assert.NotNil(t, peers[0].Skills)
	assert.Empty(t, peers[0].Skills)
	assert.Equal(t, "Grace", peers[1].Name)
	assert.Equal(t, "grace@campus.edu", peers[1].Email)
	assert.ElementsMatch(t, []string{"Rust", "golang"}, peers[1].Skills)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = f.call(t, http.MethodGet, "/directory/users", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// gatedTokens holds every refresh after validation until n requests have
// validated, so they all race on revocation.
type gatedTokens struct {
	RefreshTokens
	validated sync.WaitGroup
}

func (g *gatedTokens) ValidateRefresh(ctx context.Context, hash string) (uint64, error) {
	id, err := g.RefreshTokens.ValidateRefresh(ctx, hash)
	g.validated.Done()
	g.validated.Wait()
	return id, err
}

func TestConcurrentRefreshIssuesOnePair(t *testing.T) {
	f := newFixture(t)
	var login authResp
	f.user(t, "Mallory", model.RoleStudent)
	rec := f.call(t, http.MethodPost, "/auth/login", "", loginReq{Email: "mallory@campus.edu", Password: "password"}, &login)
	require.Equal(t, http.StatusOK, rec.Code)

	const n = 2
	tokens := &gatedTokens{RefreshTokens: f.store.Tokens()}
	tokens.validated.Add(n)
	e := echo.New()
	e.POST("/auth/refresh", NewAuthHandler(testCfg, f.store, f.store.Users(), tokens).Refresh)

	body, err := json.Marshal(refreshReq{RefreshToken: login.Refresh.Token})
	require.NoError(t, err)
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(string(body)))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	var got []int
	for i := 0; i < n; i++ {
		got = append(got, <-codes)
	}
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusUnauthorized}, got)
}

func TestAdminVenues(t *testing.T) {
	f := newFixture(t)
	_, student := f.user(t, "Ivan", model.RoleStudent)
	_, admin := f.user(t, "Judy", model.RoleAdmin)
	starts := now.Add(24 * time.Hour)

	req := provisionReq{Kind: model.VenueEvent, Name: "Play", StartsAt: &starts, TotalSeats: 5, SeatsPerRow: 2,
		TierSize: 2, Prices: []decimal.Decimal{decimal.NewFromInt(20), decimal.NewFromInt(10)}}
	rec := f.call(t, http.MethodPost, "/admin/venues", student, req, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var v model.Venue
	rec = f.call(t, http.MethodPost, "/admin/venues", admin, req, &v)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, v.Seats, 5)
	assert.Equal(t, "C1", v.Seats[4].Label())
	assert.True(t, v.Seats[4].Price.Equal(decimal.NewFromInt(10)))

	rec = f.call(t, http.MethodPost, "/venues/events/book", student, map[string]any{"eventId": v.ID, "seatId": "A2"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reset map[string]any
	rec = f.call(t, http.MethodPost, "/admin/venues/"+itoa(v.ID)+"/reset", admin, nil, &reset)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, reset["releasedBookings"])

	rec = f.call(t, http.MethodDelete, "/admin/venues/"+itoa(v.ID), admin, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.call(t, http.MethodDelete, "/admin/venues/"+itoa(v.ID), admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.call(t, http.MethodPost, "/admin/venues", admin, provisionReq{Kind: "stadium", Name: "x", TotalSeats: 1}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{model.NewError(model.ErrNotFound, "seat not found"), http.StatusNotFound, model.CodeNotFound},
		{model.NewError(model.ErrDuplicateActiveBooking, "dup"), http.StatusConflict, model.CodeDuplicateActiveBooking},
		{model.Unavailable(errors.New("conn reset")), http.StatusServiceUnavailable, model.CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, model.CodeInternal},
	}
	for _, tt := range tests {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, writeError(c, tt.err))
		assert.Equal(t, tt.status, rec.Code)

		var eb errBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
		assert.Equal(t, tt.code, eb.Code)
		assert.NotContains(t, eb.Error, "conn reset")
		if tt.status == http.StatusServiceUnavailable {
			assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))
		}
	}
}

func TestSeatRef(t *testing.T) {
	var body struct {
		A seatRef `json:"a"`
		B seatRef `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":" A12 ","b":7}`), &body))
	assert.Equal(t, seatRef("A12"), body.A)
	n, ok := body.B.numeric()
	assert.True(t, ok)
	assert.EqualValues(t, 7, n)
	_, ok = body.A.numeric()
	assert.False(t, ok)
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &body))
}

func TestHealth(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	require.NoError(t, Health(countStub(3))(c))
	assert.JSONEq(t, `{"status":"ok","connectedClients":3}`, rec.Body.String())
}

type countStub int

func (n countStub) ConnectedClients() int { return int(n) }

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }
