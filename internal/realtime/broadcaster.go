package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// Broadcaster takes committed seat updates from the reservation engine and
// relays them to the hub of every server instance.
type Broadcaster struct {
	hub      *Hub
	pub      message.Publisher
	sub      message.Subscriber
	topic    string
	instance string
	queue    chan model.SeatUpdate
	dropped  atomic.Uint64
	log      *logrus.Entry
}

func NewBroadcaster(hub *Hub, pub message.Publisher, sub message.Subscriber, cfg config.RealtimeConfig, log *logrus.Entry) *Broadcaster {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	size := cfg.EmitBuffer
	if size < 1 {
		size = 1
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "seat-updates"
	}
	return &Broadcaster{
		hub:      hub,
		pub:      pub,
		sub:      sub,
		topic:    topic,
		instance: cfg.InstanceID,
		queue:    make(chan model.SeatUpdate, size),
		log:      log.WithField("component", "broadcaster"),
	}
}

// Emit queues u for publication and returns immediately.  When the queue is
// full the update is dropped; clients converge on their next refetch.
func (b *Broadcaster) Emit(u model.SeatUpdate) {
	select {
	case b.queue <- u:
	default:
		b.dropped.Add(1)
		b.log.WithFields(logrus.Fields{"topic": u.Topic(), "seat": u.SeatNumber}).Warn("emit queue full, seat update dropped")
	}
}

// Dropped counts updates lost to a full emit queue.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Run publishes queued updates and delivers relayed ones to the hub until
// ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{"topic": b.topic, "instance": b.instance}).Info("broadcaster started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case u := <-b.queue:
				b.publish(u)
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				b.deliver(msg)
			}
		}
	})
	return g.Wait()
}

func (b *Broadcaster) publish(u model.SeatUpdate) {
	payload, err := json.Marshal(u)
	if err != nil {
		b.log.WithError(err).Error("encode seat update")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("origin", b.instance)
	msg.Metadata.Set("venue_topic", u.Topic())
	if err := b.pub.Publish(b.topic, msg); err != nil {
		// Local clients still get the update; other instances recover on refetch.
		b.log.WithError(err).WithField("topic", u.Topic()).Warn("relay publish failed, delivering locally")
		b.hub.Deliver(u)
	}
}

func (b *Broadcaster) deliver(msg *message.Message) {
	defer msg.Ack()
	var u model.SeatUpdate
	if err := json.Unmarshal(msg.Payload, &u); err != nil {
		b.log.WithError(err).WithField("message_uuid", msg.UUID).Warn("discarding malformed seat update")
		return
	}
	n := b.hub.Deliver(u)
	b.log.WithFields(logrus.Fields{
		"topic":      u.Topic(),
		"seat":       u.SeatNumber,
		"type":       u.Type,
		"recipients": n,
	}).Debug("seat update delivered")
}

// Close releases the relay.
func (b *Broadcaster) Close() error {
	return errors.Join(b.pub.Close(), b.sub.Close())
}
