package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkfleet/forkfleet-backend/pkg/config"
)

type memCommands struct {
	data    map[string]string
	counts  map[string]int64
	expires map[string]time.Duration
}

func newMem() *memCommands {
	return &memCommands{data: map[string]string{}, counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *memCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memCommands) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.expires[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *memCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *memCommands) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if m.data[keys[0]] == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	mem := newMem()
	c := &Client{cmd: mem}
	ctx := context.Background()

	n, err := c.IncrWithTTL(ctx, "ff:rate_limit:ip", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.IncrWithTTL(ctx, "ff:rate_limit:ip", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Minute, mem.expires["ff:rate_limit:ip"])
}

func TestSetNXFirstWriterWins(t *testing.T) {
	c := &Client{cmd: newMem()}
	ctx := context.Background()
	k := c.WebhookKey("stripe", "cs_test_1", "succeeded")

	first, err := c.SetNX(ctx, k, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := c.SetNX(ctx, k, "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	require.NoError(t, c.Del(ctx, k))
	_, err = c.Get(ctx, k)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDeleteOnlyRemovesOwnedValue(t *testing.T) {
	mem := newMem()
	c := &Client{cmd: mem}
	ctx := context.Background()
	mem.data["ff:lock:cron"] = "owner-a"

	removed, err := c.CompareAndDelete(ctx, "ff:lock:cron", "owner-b")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Contains(t, mem.data, "ff:lock:cron")

	removed, err = c.CompareAndDelete(ctx, "ff:lock:cron", "owner-a")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestUnconnectedClientErrors(t *testing.T) {
	c := &Client{}
	assert.Error(t, c.Ping(context.Background()))
	_, err := c.SetNX(context.Background(), "k", 1, 0)
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "ff:idempotency:scope:id", c.IdempotencyKey("scope", "id"))
	assert.Equal(t, "ff:rate_limit:ip:1.2.3.4", c.RateLimitKey("ip:1.2.3.4"))
	assert.Equal(t, "ff:idempotency:webhook:square:pl_1:failed", c.WebhookKey("square", "pl_1", "failed"))
	assert.Equal(t, "ff:lock:cron", c.LockKey(" cron "))
}

func TestOptions(t *testing.T) {
	_, err := options(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := options(config.RedisConfig{URL: "redis://:pw@localhost:6380/3", PoolSize: 20, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = options(config.RedisConfig{Address: "cache:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}
