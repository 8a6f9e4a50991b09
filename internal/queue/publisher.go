package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (amqpChannel, io.Closer, error)

func dialAMQP(url string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn, nil
}

// Publisher buffers audit events and publishes them over one long-lived
// connection, redialing with backoff when the broker goes away.  Record
// never blocks: a full buffer drops the event.
type Publisher struct {
	url     string
	buf     chan BookingEvent
	dial    dialFunc
	log     *logrus.Entry
	dropped atomic.Uint64

	pending *BookingEvent // owned by Run
}

func NewPublisher(url string, buffer int, log *logrus.Entry) *Publisher {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{
		url:  url,
		buf:  make(chan BookingEvent, buffer),
		dial: dialAMQP,
		log:  log.WithField("component", "audit-publisher"),
	}
}

// Record queues an audit event for b.
func (p *Publisher) Record(b model.Booking, action model.SeatUpdateType) {
	select {
	case p.buf <- NewBookingEvent(b, action):
	default:
		p.dropped.Add(1)
		p.log.WithField("booking_id", b.ID).Warn("audit buffer full, event dropped")
	}
}

// Dropped counts events lost to a full buffer.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Run publishes until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		ch, conn, err := p.dial(p.url)
		if err != nil {
			p.log.WithError(err).WithField("retry_in", backoff).Warn("broker dial failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = p.pump(ctx, ch)
		_ = ch.Close()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		p.log.WithError(err).Warn("publish loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (p *Publisher) pump(ctx context.Context, ch amqpChannel) error {
	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for {
		if p.pending == nil {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-p.buf:
				p.pending = &ev
			}
		}
		if err := p.publish(ctx, ch, *p.pending); err != nil {
			return err
		}
		p.pending = nil
	}
}

func (p *Publisher) publish(ctx context.Context, ch amqpChannel, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		// Not retryable; drop it.
		p.log.WithError(err).Error("encode audit event")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(ctx, "", BookingQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
