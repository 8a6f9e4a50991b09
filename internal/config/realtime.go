package config

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Relay backends for seat updates.
const (
	RelayMemory = "memory"
	RelayRedis  = "redis"
)

// DefaultStreamMaxLen is the approximate number of seat updates kept on the
// redis stream.
const DefaultStreamMaxLen = 1000

// RealtimeConfig tunes the websocket broadcaster.  Relay selects how seat
// updates travel between server instances: "memory" keeps them in process,
// "redis" fans them out over a Redis stream so every instance delivers
// every update to its own clients.
type RealtimeConfig struct {
	Relay        string
	Topic        string
	InstanceID   string
	EmitBuffer   int
	ClientBuffer int
	PingInterval time.Duration
	WriteTimeout time.Duration
	// StreamMaxLen caps the redis stream; subscribers never read history.
	StreamMaxLen int64
}

func LoadRealtimeConfig() RealtimeConfig {
	cfg := RealtimeConfig{
		Relay:        strings.ToLower(envStr("REALTIME_RELAY", RelayMemory)),
		Topic:        envStr("REALTIME_TOPIC", "seat-updates"),
		InstanceID:   envStr("INSTANCE_ID", uuid.NewString()),
		EmitBuffer:   envInt("REALTIME_EMIT_BUFFER", 1024),
		ClientBuffer: envInt("REALTIME_CLIENT_BUFFER", 64),
		PingInterval: envDur("REALTIME_PING_INTERVAL", 30*time.Second),
		WriteTimeout: envDur("REALTIME_WRITE_TIMEOUT", 10*time.Second),
		StreamMaxLen: int64(envInt("REALTIME_STREAM_MAXLEN", DefaultStreamMaxLen)),
	}
	if cfg.Relay != RelayRedis {
		cfg.Relay = RelayMemory
	}
	if cfg.EmitBuffer < 1 {
		cfg.EmitBuffer = 1
	}
	if cfg.ClientBuffer < 1 {
		cfg.ClientBuffer = 1
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.StreamMaxLen < 1 {
		cfg.StreamMaxLen = DefaultStreamMaxLen
	}
	return cfg
}
