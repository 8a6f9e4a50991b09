package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// APIClient talks to the reservation HTTP surface.  Error bodies are
// decoded back into the model error taxonomy; an Unauthenticated reply
// also clears the stored token.
type APIClient struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// WebsocketURL is the real-time endpoint of the server.
func (c *APIClient) WebsocketURL() string {
	u := c.base + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Login exchanges credentials for an access token and keeps it.
func (c *APIClient) Login(ctx context.Context, email, password string) (model.UserRef, error) {
	var resp struct {
		User struct {
			ID   uint64 `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"user"`
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return model.UserRef{}, err
	}
	c.SetToken(resp.Access.Token)
	return model.UserRef{ID: resp.User.ID, Name: resp.User.Name, Role: resp.User.Role}, nil
}

func (c *APIClient) Libraries(ctx context.Context) ([]model.Venue, error) {
	var out []model.Venue
	if err := c.do(ctx, http.MethodGet, "/venues/libraries", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LibraryStatus is a library with its occupancy counters.
type LibraryStatus struct {
	Library        model.Venue `json:"library"`
	TotalSeats     int         `json:"totalSeats"`
	OccupiedSeats  int         `json:"occupiedSeats"`
	AvailableSeats int         `json:"availableSeats"`
}

func (c *APIClient) LibraryStatus(ctx context.Context, id uint64) (LibraryStatus, error) {
	var out LibraryStatus
	if err := c.do(ctx, http.MethodGet, "/venues/libraries/"+strconv.FormatUint(id, 10)+"/status", nil, &out); err != nil {
		return LibraryStatus{}, err
	}
	return out, nil
}

func (c *APIClient) Events(ctx context.Context) ([]model.Venue, error) {
	var out []model.Venue
	if err := c.do(ctx, http.MethodGet, "/venues/events", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Bookings returns the caller's active bookings.
func (c *APIClient) Bookings(ctx context.Context) ([]model.Booking, error) {
	var out []model.Booking
	if err := c.do(ctx, http.MethodGet, "/venues/libraries/bookings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type bookingReply struct {
	Message string        `json:"message"`
	Booking model.Booking `json:"booking"`
}

func (c *APIClient) BookLibrary(ctx context.Context, libraryID uint64, seatNumber string) (model.Booking, error) {
	var out bookingReply
	body := map[string]any{"libraryId": libraryID, "seatNumber": seatNumber}
	if err := c.do(ctx, http.MethodPost, "/venues/libraries/book", body, &out); err != nil {
		return model.Booking{}, err
	}
	return out.Booking, nil
}

func (c *APIClient) LeaveLibrary(ctx context.Context, bookingID uint64) (model.Booking, error) {
	var out bookingReply
	path := "/venues/libraries/leave/" + strconv.FormatUint(bookingID, 10)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return model.Booking{}, err
	}
	return out.Booking, nil
}

func (c *APIClient) BookEvent(ctx context.Context, eventID uint64, seatID string) (model.Booking, error) {
	var out bookingReply
	body := map[string]any{"eventId": eventID, "seatId": seatID}
	if err := c.do(ctx, http.MethodPost, "/venues/events/book", body, &out); err != nil {
		return model.Booking{}, err
	}
	return out.Booking, nil
}

func (c *APIClient) LeaveEvent(ctx context.Context, bookingID uint64) (model.Booking, error) {
	var out bookingReply
	path := "/venues/events/leave/" + strconv.FormatUint(bookingID, 10)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return model.Booking{}, err
	}
	return out.Booking, nil
}

// Peer is a directory search hit.
type Peer struct {
	ID     uint64   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Skills []string `json:"skills"`
}

func (c *APIClient) SearchDirectory(ctx context.Context, skill string) ([]Peer, error) {
	var out []Peer
	if err := c.do(ctx, http.MethodGet, "/directory/search?skill="+url.QueryEscape(skill), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	ClearToken bool   `json:"clear_token"`
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *APIClient) decodeError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	kind := model.KindForCode(body.Code)
	if kind == nil {
		kind = kindForStatus(resp.StatusCode)
	}
	if body.ClearToken || kind == model.ErrUnauthenticated {
		c.SetToken("")
	}
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return model.NewError(kind, msg)
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrAlreadyOccupied
	case http.StatusForbidden:
		return model.ErrNotAuthorized
	case http.StatusUnauthorized:
		return model.ErrUnauthenticated
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return model.ErrInvalid
	}
	return model.ErrUnavailable
}
