// Package realtime pushes committed seat updates to websocket clients.
//
// A Hub is the registry of connected clients and their venue topics.  It is
// created by the caller, shared by the websocket server and the
// broadcaster, and closed at shutdown.  Delivery never blocks: a client
// whose outbox is full is dropped and recovers by refetching.
package realtime

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// Server to client event names.
const (
	EventSeatUpdate      = "seat-update"
	EventVenueSeatUpdate = "venue-seat-update"
	EventSubscribed      = "subscribed"
	EventUnsubscribed    = "unsubscribed"
	EventVenueStatus     = "venue-status"
	EventError           = "error"
)

var ErrHubClosed = errors.New("realtime: hub closed")

var topicPattern = regexp.MustCompile(`^(library|event)-[1-9][0-9]*$`)

// ValidTopic reports whether topic names a venue ("library-3", "event-12").
func ValidTopic(topic string) bool { return topicPattern.MatchString(topic) }

// ParseTopic splits a valid topic into venue kind and id.
func ParseTopic(topic string) (model.VenueKind, uint64, bool) {
	if !ValidTopic(topic) {
		return "", 0, false
	}
	kind, id, _ := strings.Cut(topic, "-")
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return model.VenueKind(kind), n, true
}

// VenueStatus is the occupancy summary answered to a status request.
type VenueStatus struct {
	VenueID        uint64          `json:"venueId"`
	Kind           model.VenueKind `json:"kind"`
	TotalSeats     int             `json:"totalSeats"`
	OccupiedSeats  int             `json:"occupiedSeats"`
	AvailableSeats int             `json:"availableSeats"`
}

// Frame is the server to client envelope.
type Frame struct {
	Event   string            `json:"event"`
	Topic   string            `json:"topic,omitempty"`
	Data    *model.SeatUpdate `json:"data,omitempty"`
	Status  *VenueStatus      `json:"status,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Client is one registered receiver.  Its fields other than id and global
// are guarded by the hub mutex.
type Client struct {
	id     string
	global bool
	out    chan []byte
	topics map[string]struct{}
	gone   bool
}

// NewClient creates a client with an outbox of size buffer.  A global
// client also receives updates for venues it has not joined.
func NewClient(id string, buffer int, global bool) *Client {
	if buffer < 1 {
		buffer = 1
	}
	return &Client{id: id, global: global, out: make(chan []byte, buffer), topics: map[string]struct{}{}}
}

func (c *Client) ID() string { return c.id }

// Outbox yields encoded frames; it is closed when the hub drops the client.
func (c *Client) Outbox() <-chan []byte { return c.out }

type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	seen    map[model.SeatKey]uint64
	closed  bool
	log     *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		clients: map[*Client]struct{}{},
		topics:  map[string]map[*Client]struct{}{},
		seen:    map[model.SeatKey]uint64{},
		log:     log.WithField("component", "hub"),
	}
}

func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	return nil
}

// Unregister removes c from every topic and closes its outbox.  It is safe
// to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// Join subscribes c to topic and acknowledges it.
func (h *Hub) Join(c *Client, topic string) error {
	if !ValidTopic(topic) {
		return model.NewError(model.ErrInvalid, "unknown topic "+topic)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.gone {
		return ErrHubClosed
	}
	members, ok := h.topics[topic]
	if !ok {
		members = map[*Client]struct{}{}
		h.topics[topic] = members
	}
	members[c] = struct{}{}
	c.topics[topic] = struct{}{}
	h.sendFrameLocked(c, Frame{Event: EventSubscribed, Topic: topic})
	return nil
}

// Leave unsubscribes c from topic.  Leaving a topic never joined is a no-op
// that is still acknowledged.
func (h *Hub) Leave(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.gone {
		return
	}
	h.leaveLocked(c, topic)
	h.sendFrameLocked(c, Frame{Event: EventUnsubscribed, Topic: topic})
}

// Notify sends an out-of-band frame (errors, status replies) to c.
func (h *Hub) Notify(c *Client, f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.gone {
		h.sendFrameLocked(c, f)
	}
}

// Deliver fans u out to the members of its venue topic and to global
// clients.  An update whose seat version is not newer than the last one
// delivered for that seat is discarded.  It returns the number of clients
// the update was queued for.
func (h *Hub) Deliver(u model.SeatUpdate) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	key := u.SeatKey()
	if last, ok := h.seen[key]; ok && u.Version <= last {
		h.log.WithFields(logrus.Fields{
			"topic":   u.Topic(),
			"seat":    u.SeatNumber,
			"version": u.Version,
			"last":    last,
		}).Debug("stale seat update discarded")
		return 0
	}
	h.seen[key] = u.Version

	topic := u.Topic()
	members := h.topics[topic]
	var room, global []byte
	sent := 0
	for c := range members {
		if room == nil {
			room = h.encode(Frame{Event: EventSeatUpdate, Topic: topic, Data: &u})
		}
		if h.sendLocked(c, room) {
			sent++
		}
	}
	for c := range h.clients {
		if !c.global {
			continue
		}
		if _, joined := c.topics[topic]; joined {
			continue
		}
		if global == nil {
			global = h.encode(Frame{Event: EventVenueSeatUpdate, Topic: topic, Data: &u})
		}
		if h.sendLocked(c, global) {
			sent++
		}
	}
	return sent
}

// ConnectedClients is the number of registered clients.
func (h *Hub) ConnectedClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every client and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) leaveLocked(c *Client, topic string) {
	delete(c.topics, topic)
	if members, ok := h.topics[topic]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	if c.gone {
		return
	}
	c.gone = true
	for topic := range c.topics {
		h.leaveLocked(c, topic)
	}
	delete(h.clients, c)
	close(c.out)
}

func (h *Hub) sendFrameLocked(c *Client, f Frame) bool {
	return h.sendLocked(c, h.encode(f))
}

// sendLocked queues payload without blocking.  A full outbox means the
// client is not keeping up; it is dropped.
func (h *Hub) sendLocked(c *Client, payload []byte) bool {
	select {
	case c.out <- payload:
		return true
	default:
		h.log.WithField("client", c.id).Warn("client outbox full, dropping client")
		h.dropLocked(c)
		return false
	}
}

func (h *Hub) encode(f Frame) []byte {
	b, err := json.Marshal(f)
	if err != nil {
		// Frame only holds plain values.
		panic(err)
	}
	return b
}
