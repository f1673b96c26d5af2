package redis

import (
	"context"
	"time"
)

// RateLimiter records source backpressure. A blocked key stays blocked until
// the Retry-After window the source asked for has passed.
type RateLimiter struct {
	client    *Client
	keyPrefix string
}

func NewRateLimiter(client *Client, keyPrefix string) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix}
}

func (r *RateLimiter) blockKey(key string) string {
	return r.keyPrefix + key + ":block"
}

// BlockFor blocks key for d. Non-positive durations are ignored.
func (r *RateLimiter) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.client.rdb.Set(ctx, r.blockKey(key), "1", d).Err()
}

// IsBlocked returns whether key is blocked and the remaining block time.
func (r *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	exists, err := r.client.rdb.Exists(ctx, r.blockKey(key)).Result()
	if err != nil {
		return false, 0, err
	}
	if exists == 0 {
		return false, 0, nil
	}
	ttl, err := r.client.rdb.PTTL(ctx, r.blockKey(key)).Result()
	if err != nil {
		return true, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return true, ttl, nil
}

func (r *RateLimiter) Unblock(ctx context.Context, key string) error {
	return r.client.rdb.Del(ctx, r.blockKey(key)).Err()
}
