package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/models"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})), mr
}

func TestLocker(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(client, "thistle:run:")

	lock, err := locker.Acquire(ctx, "7:wb:chat", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "7:wb:chat", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	other, err := locker.Acquire(ctx, "7:wb:review", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Extend(ctx, 2*time.Minute))
	assert.Equal(t, 2*time.Minute, mr.TTL("thistle:run:7:wb:chat"))

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	_, err = locker.Acquire(ctx, "7:wb:chat", time.Minute)
	assert.NoError(t, err)
}

func TestLocker_Expiry(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(client, "")

	_, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.NoError(t, err)
}

func TestRateLimiter_Block(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client, "thistle:ratelimit:")

	blocked, _, err := limiter.IsBlocked(ctx, "7:wb:chat")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, limiter.BlockFor(ctx, "7:wb:chat", 30*time.Second))
	require.NoError(t, limiter.BlockFor(ctx, "7:wb:review", 0))

	blocked, ttl, err := limiter.IsBlocked(ctx, "7:wb:chat")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, 30*time.Second, ttl)

	blocked, _, err = limiter.IsBlocked(ctx, "7:wb:review")
	require.NoError(t, err)
	assert.False(t, blocked)

	mr.FastForward(31 * time.Second)
	blocked, _, err = limiter.IsBlocked(ctx, "7:wb:chat")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestStreams(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	streams := NewStreams(client)

	require.NoError(t, streams.CreateConsumerGroup(ctx, "sync-jobs", "workers"))
	require.NoError(t, streams.CreateConsumerGroup(ctx, "sync-jobs", "workers"))

	key := models.SyncKey{SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat}
	_, err := streams.Publish(ctx, "sync-jobs", NewSyncJob(key, time.Now()))
	require.NoError(t, err)

	messages, err := streams.Consume(ctx, "sync-jobs", "workers", "w-1", 10, -1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, key, messages[0].Job.Key())

	require.NoError(t, streams.Ack(ctx, "sync-jobs", "workers", messages[0].ID))

	length, err := streams.Len(ctx, "sync-jobs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestClientConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	client := NewClient(Config{Host: mr.Host(), Port: port}, logger)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Connect(context.Background()))

	mr.Close()
	assert.Error(t, client.Connect(context.Background()))
}
