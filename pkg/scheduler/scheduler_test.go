package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/store/memstore"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type recordingDispatcher struct {
	mu   sync.Mutex
	keys []models.SyncKey
}

func (d *recordingDispatcher) Dispatch(_ context.Context, key models.SyncKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func (d *recordingDispatcher) dispatched() []models.SyncKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.SyncKey(nil), d.keys...)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) Sweep(_ context.Context, _ time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0, nil
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func seedConnections(t *testing.T, store *memstore.Store, now time.Time) (due, recent models.SyncKey) {
	t.Helper()
	ctx := context.Background()
	due = models.SyncKey{SellerID: 1, Marketplace: "wb", Channel: models.ChannelReview}
	recent = models.SyncKey{SellerID: 1, Marketplace: "wb", Channel: models.ChannelChat}
	disabled := models.SyncKey{SellerID: 2, Marketplace: "ozon", Channel: models.ChannelQuestion}

	for _, key := range []models.SyncKey{due, recent, disabled} {
		require.NoError(t, store.SaveConnection(ctx, &models.SyncConnection{
			SellerID:            key.SellerID,
			Marketplace:         key.Marketplace,
			Channel:             key.Channel,
			Enabled:             key != disabled,
			PollIntervalSeconds: 300,
			CreatedAt:           now.Add(-time.Hour),
		}))
	}

	old := models.NewSyncRun(due, now.Add(-10*time.Minute))
	old.FinishedAt = old.StartedAt.Add(time.Second)
	require.NoError(t, store.RecordRun(ctx, old))

	fresh := models.NewSyncRun(recent, now.Add(-time.Minute))
	fresh.FinishedAt = fresh.StartedAt.Add(time.Second)
	require.NoError(t, store.RecordRun(ctx, fresh))
	return due, recent
}

func TestRunCycleDispatchesDueConnections(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	due, _ := seedConnections(t, store, now)

	dispatcher := &recordingDispatcher{}
	s := NewScheduler(store, dispatcher, nil, nil, nil, Config{}, testLogger())
	s.now = func() time.Time { return now }

	scheduled, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, []models.SyncKey{due}, dispatcher.dispatched())
}

func TestRunCycleSkipsTriplesLockedByAnotherInstance(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	due, _ := seedConnections(t, store, now)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := redis.NewLocker(redis.Wrap(rdb, testLogger()), LockKeyPrefix)

	held, err := locker.Acquire(context.Background(), due.String(), time.Minute)
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	s := NewScheduler(store, dispatcher, locker, nil, nil, Config{}, testLogger())
	s.now = func() time.Time { return now }

	scheduled, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, scheduled)
	assert.Empty(t, dispatcher.dispatched())

	require.NoError(t, held.Release(context.Background()))
	scheduled, err = s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
}

func TestStartRunsLoopsUntilStopped(t *testing.T) {
	store := memstore.New()
	dispatcher := &recordingDispatcher{}
	sweeper := &countingSweeper{}

	s := NewScheduler(store, dispatcher, nil, sweeper, nil, Config{
		PollInterval:  10 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
}
