// Package ratelimit enforces a fixed-window per-user request budget backed
// by Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nomomon/sandbox-api/internal/config"
)

var ErrLimited = errors.New("rate limit exceeded")

// Limiter counts requests per user in a fixed window. The first request of a
// window creates the counter and arms its expiry.
type Limiter struct {
	rdb      *redis.Client
	requests int64
	window   time.Duration
}

func New(rdb *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		rdb:      rdb,
		requests: int64(cfg.Requests),
		window:   time.Duration(cfg.WindowSeconds) * time.Second,
	}
}

func key(userID string) string {
	return "rate:" + userID
}

// Allow records one request for user and reports whether it fits the current
// window. Counting happens before checking, so rejected requests still
// consume budget.
func (l *Limiter) Allow(ctx context.Context, userID string) error {
	k := key(userID)
	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}

	// A counter without expiry is the first hit of a fresh window.
	if ttl.Val() < 0 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("arm rate limit window: %w", err)
		}
	}

	if incr.Val() > l.requests {
		return ErrLimited
	}
	return nil
}
