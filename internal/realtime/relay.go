package realtime

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-seat-reservation/internal/config"
)

// NewRelay returns the pub/sub pair that carries seat updates from the
// broadcaster to every instance's hub.  With the redis relay each instance
// reads the stream without a consumer group, so all of them see every
// update.  Without a redis client it falls back to an in-process channel.
func NewRelay(cfg config.RealtimeConfig, rdb *redis.Client, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if cfg.Relay == config.RelayRedis && rdb != nil {
		pub, err := redisstream.NewPublisher(streamPublisherConfig(cfg, rdb), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis stream publisher: %w", err)
		}
		sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:   rdb,
			Consumer: cfg.InstanceID,
		}, logger)
		if err != nil {
			_ = pub.Close()
			return nil, nil, fmt.Errorf("creating redis stream subscriber: %w", err)
		}
		return pub, sub, nil
	}

	// Publish waits for the hub's ack so updates reach it in emit order.
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(cfg.EmitBuffer),
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return ch, ch, nil
}

// streamPublisherConfig trims the stream to cfg.StreamMaxLen on every XADD.
func streamPublisherConfig(cfg config.RealtimeConfig, rdb redis.UniversalClient) redisstream.PublisherConfig {
	return redisstream.PublisherConfig{
		Client:  rdb,
		Maxlens: map[string]int64{cfg.Topic: cfg.StreamMaxLen},
	}
}
