package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "")
	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 20, cfg.Capacity)
	assert.Equal(t, "user_route", cfg.KeyStrategy)
	assert.GreaterOrEqual(t, cfg.TTL, 5*cfg.RefillInterval)
}

func TestLoadRateLimitConfigOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")
	cfg := LoadRateLimitConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "bogus")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.Equal(t, time.Second, cfg.TTL)
	assert.Equal(t, "user_route_query", cfg.KeyStrategy)
}

func TestLoadRealtimeConfig(t *testing.T) {
	t.Setenv("REALTIME_RELAY", "kafka")
	t.Setenv("REALTIME_CLIENT_BUFFER", "0")
	t.Setenv("INSTANCE_ID", "node-1")
	cfg := LoadRealtimeConfig()
	assert.Equal(t, RelayMemory, cfg.Relay)
	assert.Equal(t, 1, cfg.ClientBuffer)
	assert.Equal(t, "node-1", cfg.InstanceID)
	assert.Equal(t, "seat-updates", cfg.Topic)
	assert.Equal(t, int64(DefaultStreamMaxLen), cfg.StreamMaxLen)

	t.Setenv("REALTIME_RELAY", "Redis")
	t.Setenv("INSTANCE_ID", "")
	t.Setenv("REALTIME_STREAM_MAXLEN", "50")
	cfg = LoadRealtimeConfig()
	assert.Equal(t, RelayRedis, cfg.Relay)
	assert.Equal(t, int64(50), cfg.StreamMaxLen)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "150ms")
	assert.True(t, envBool("X_BOOL", false))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, 150*time.Millisecond, envDur("X_DUR", time.Second))
	assert.Equal(t, "d", envStr("X_MISSING", "d"))

	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://x")
	assert.Equal(t, "amqp://x", firstEnv("RABBITMQ_URL", "AMQP_URL"))
}
