package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

const (
	maxClientFrame = 4 << 10
	statusTimeout  = 5 * time.Second
)

// ClientFrame is what a websocket client may send.
type ClientFrame struct {
	Action string `json:"action"` // subscribe | unsubscribe | status
	Topic  string `json:"topic"`
}

// VenueLookup loads a venue with its seat map.
type VenueLookup interface {
	GetWithSeats(ctx context.Context, id uint64) (model.Venue, error)
}

// Server upgrades HTTP requests to websocket clients of a hub.
//
// Query parameters: topics=library-1,event-2 joins topics on connect;
// scope=topics opts out of updates for venues not joined.
type Server struct {
	hub      *Hub
	cfg      config.RealtimeConfig
	venues   VenueLookup
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

type ServerOption func(*Server)

// WithVenues enables the status action.
func WithVenues(v VenueLookup) ServerOption {
	return func(s *Server) { s.venues = v }
}

func NewServer(hub *Hub, cfg config.RealtimeConfig, log *logrus.Entry, opts ...ServerOption) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The web client is served from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.WithField("component", "websocket"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP blocks until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	q := r.URL.Query()
	c := NewClient(uuid.NewString(), s.cfg.ClientBuffer, q.Get("scope") != "topics")
	if err := s.hub.Register(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	log := s.log.WithField("client", c.ID())
	log.Debug("client connected")

	for _, topic := range strings.Split(q.Get("topics"), ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			s.join(c, topic)
		}
	}

	go s.writePump(conn, c)
	s.readPump(conn, c, log)
}

func (s *Server) join(c *Client, topic string) {
	if err := s.hub.Join(c, topic); err != nil {
		s.hub.Notify(c, Frame{Event: EventError, Topic: topic, Message: "unknown topic"})
	}
}

// status answers one venue's occupancy counts to c.
func (s *Server) status(c *Client, topic string, log *logrus.Entry) {
	kind, id, ok := ParseTopic(topic)
	if !ok {
		s.hub.Notify(c, Frame{Event: EventError, Topic: topic, Message: "unknown topic"})
		return
	}
	if s.venues == nil {
		s.hub.Notify(c, Frame{Event: EventError, Topic: topic, Message: "status unavailable"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	v, err := s.venues.GetWithSeats(ctx, id)
	if err == nil && v.Kind != kind {
		err = model.ErrNotFound
	}
	if err != nil {
		msg := "venue not found"
		if !errors.Is(err, model.ErrNotFound) {
			log.WithError(err).WithField("topic", topic).Warn("venue status lookup failed")
			msg = "status unavailable"
		}
		s.hub.Notify(c, Frame{Event: EventError, Topic: topic, Message: msg})
		return
	}
	occupied := v.OccupiedCount()
	s.hub.Notify(c, Frame{Event: EventVenueStatus, Topic: topic, Status: &VenueStatus{
		VenueID:        v.ID,
		Kind:           v.Kind,
		TotalSeats:     v.SeatCount(),
		OccupiedSeats:  occupied,
		AvailableSeats: v.SeatCount() - occupied,
	}})
}

func (s *Server) pongWait() time.Duration { return s.cfg.PingInterval + s.cfg.WriteTimeout }

func (s *Server) readPump(conn *websocket.Conn, c *Client, log *logrus.Entry) {
	defer func() {
		s.hub.Unregister(c)
		_ = conn.Close()
		log.Debug("client disconnected")
	}()
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait()))

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.hub.Notify(c, Frame{Event: EventError, Message: "malformed frame"})
			continue
		}
		switch f.Action {
		case "subscribe", "join":
			s.join(c, f.Topic)
		case "unsubscribe", "leave":
			s.hub.Leave(c, f.Topic)
		case "status", "request-library-status":
			s.status(c, f.Topic, log)
		default:
			s.hub.Notify(c, Frame{Event: EventError, Message: "unknown action " + f.Action})
		}
	}
}

// writePump is the only writer on conn once the client is registered.
func (s *Server) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
