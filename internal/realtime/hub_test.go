package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

func update(venue uint64, seat int, version uint64, typ model.SeatUpdateType) model.SeatUpdate {
	return model.SeatUpdate{
		Type:       typ,
		VenueKind:  model.VenueLibrary,
		VenueID:    venue,
		SeatID:     uint64(seat),
		Seat:       model.SeatLocator{Number: seat},
		SeatNumber: model.SeatLocator{Number: seat}.String(),
		Timestamp:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Version:    version,
	}
}

func drain(t *testing.T, c *Client) []Frame {
	t.Helper()
	var out []Frame
	for {
		select {
		case raw, ok := <-c.Outbox():
			if !ok {
				return out
			}
			var f Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestHubTopicsAndGlobalStream(t *testing.T) {
	h := NewHub(logging.Discard())
	member := NewClient("member", 8, false)
	global := NewClient("global", 8, true)
	quiet := NewClient("quiet", 8, false)
	for _, c := range []*Client{member, global, quiet} {
		require.NoError(t, h.Register(c))
	}
	require.NoError(t, h.Join(member, "library-1"))
	assert.Equal(t, []Frame{{Event: EventSubscribed, Topic: "library-1"}}, drain(t, member))

	assert.Equal(t, 2, h.Deliver(update(1, 2, 1, model.SeatBooked)))

	got := drain(t, member)
	require.Len(t, got, 1)
	assert.Equal(t, EventSeatUpdate, got[0].Event)
	assert.Equal(t, "library-1", got[0].Topic)
	assert.Equal(t, "2", got[0].Data.SeatNumber)

	got = drain(t, global)
	require.Len(t, got, 1)
	assert.Equal(t, EventVenueSeatUpdate, got[0].Event)
	assert.Empty(t, drain(t, quiet))

	h.Leave(member, "library-1")
	assert.Equal(t, []Frame{{Event: EventUnsubscribed, Topic: "library-1"}}, drain(t, member))
	assert.Equal(t, 1, h.Deliver(update(1, 2, 2, model.SeatReleased)))
	assert.Empty(t, drain(t, member))
}

func TestHubJoinRejectsUnknownTopic(t *testing.T) {
	h := NewHub(logging.Discard())
	c := NewClient("c", 4, false)
	require.NoError(t, h.Register(c))
	assert.ErrorIs(t, h.Join(c, "cinema-1"), model.ErrInvalid)
	assert.ErrorIs(t, h.Join(c, "library-0"), model.ErrInvalid)
	assert.Empty(t, drain(t, c))
}

func TestHubDiscardsStaleVersions(t *testing.T) {
	h := NewHub(logging.Discard())
	c := NewClient("c", 8, true)
	require.NoError(t, h.Register(c))

	assert.Equal(t, 1, h.Deliver(update(1, 2, 2, model.SeatReleased)))
	assert.Zero(t, h.Deliver(update(1, 2, 1, model.SeatBooked)), "older version")
	assert.Zero(t, h.Deliver(update(1, 2, 2, model.SeatReleased)), "duplicate")
	assert.Equal(t, 1, h.Deliver(update(1, 3, 1, model.SeatBooked)), "other seat")

	got := drain(t, c)
	require.Len(t, got, 2)
	assert.Equal(t, model.SeatReleased, got[0].Data.Type)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(logging.Discard())
	slow := NewClient("slow", 1, true)
	require.NoError(t, h.Register(slow))

	assert.Equal(t, 1, h.Deliver(update(1, 1, 1, model.SeatBooked)))
	assert.Zero(t, h.Deliver(update(1, 2, 1, model.SeatBooked)))
	assert.Zero(t, h.ConnectedClients())

	got := drain(t, slow)
	assert.Len(t, got, 1, "queued frame survives, then the outbox is closed")
	_, open := <-slow.Outbox()
	assert.False(t, open)

	h.Unregister(slow)
}

func TestHubClose(t *testing.T) {
	h := NewHub(logging.Discard())
	c := NewClient("c", 1, true)
	require.NoError(t, h.Register(c))
	assert.Equal(t, 1, h.ConnectedClients())

	h.Close()
	h.Close()
	_, open := <-c.Outbox()
	assert.False(t, open)
	assert.ErrorIs(t, h.Register(NewClient("late", 1, true)), ErrHubClosed)
	assert.Zero(t, h.Deliver(update(1, 1, 1, model.SeatBooked)))
}

func TestParseTopic(t *testing.T) {
	kind, id, ok := ParseTopic("event-12")
	require.True(t, ok)
	assert.Equal(t, model.VenueEvent, kind)
	assert.Equal(t, uint64(12), id)

	for _, bad := range []string{"event-0", "gym-1", "library-", "library-1x"} {
		_, _, ok := ParseTopic(bad)
		assert.False(t, ok, bad)
	}
}
