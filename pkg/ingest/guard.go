package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ramsey-B/thistle/pkg/redis"
)

// Guard grants at most one in-flight run per triple. Acquire returns
// ErrRunInProgress when the key is already held.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RedisGuard holds a SET NX lock per triple so runs are exclusive across workers.
type RedisGuard struct {
	locker *redis.Locker
}

func NewRedisGuard(locker *redis.Locker) *RedisGuard {
	return &RedisGuard{locker: locker}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := g.locker.Acquire(ctx, key, ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// A fresh context so the lock is released even when the run's context is done.
		_ = lock.Release(context.Background())
	}, nil
}

// LocalGuard is the in-process guard used when no Redis is configured.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: map[string]struct{}{}}
}

func (g *LocalGuard) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, ErrRunInProgress
	}
	g.held[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.held, key)
		g.mu.Unlock()
	}, nil
}

// LocalBlocker keeps rate limit blocks in memory.
type LocalBlocker struct {
	mu      sync.Mutex
	until   map[string]time.Time
	nowFunc func() time.Time
}

func NewLocalBlocker() *LocalBlocker {
	return &LocalBlocker{until: map[string]time.Time{}, nowFunc: time.Now}
}

func (b *LocalBlocker) BlockFor(_ context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.until[key] = b.nowFunc().Add(d)
	return nil
}

func (b *LocalBlocker) IsBlocked(_ context.Context, key string) (bool, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.until[key]
	if !ok {
		return false, 0, nil
	}
	remaining := until.Sub(b.nowFunc())
	if remaining <= 0 {
		delete(b.until, key)
		return false, 0, nil
	}
	return true, remaining, nil
}
