// Package ratelimit implements the Rate Limiter (spec.md §4.5, C5): a
// Redis sorted-set sliding window, ported from original_source's
// app/middleware/rate_limit.py (no Go repo in the example pack implements
// this algorithm against Redis directly — CedrosPay-server's
// internal/ratelimit uses go-chi/httprate instead, which has no sorted-set
// primitive for an externally shared window).
package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/clock"
)

// Class is one of the three fixed rate-limit classes (spec.md §4.5).
type Class string

const (
	ClassAuth  Class = "auth"
	ClassAPI   Class = "api"
	ClassProxy Class = "proxy"
)

type window struct {
	requests int64
	seconds  int64
}

var windows = map[Class]window{
	ClassAuth:  {requests: 5, seconds: 3600},
	ClassAPI:   {requests: 100, seconds: 60},
	ClassProxy: {requests: 1000, seconds: 60},
}

// Limiter enforces the three sliding-window classes over Redis sorted
// sets. Fails open (allows the request, logs a warning) on any Redis
// error.
type Limiter struct {
	rdb     *redis.Client
	clock   clock.Clock
	log     zerolog.Logger
	enabled bool
}

func New(rdb *redis.Client, clk clock.Clock, enabled bool, log zerolog.Logger) *Limiter {
	return &Limiter{rdb: rdb, clock: clk, enabled: enabled, log: log.With().Str("component", "ratelimit").Logger()}
}

// Allow checks and, if allowed, records one request for identifier under
// class. elevated bypasses the limit entirely (admin/elevated users, per
// spec.md §4.5). An empty identifier always passes through.
func (l *Limiter) Allow(ctx context.Context, class Class, identifier string, elevated bool) error {
	if !l.enabled || elevated || identifier == "" {
		return nil
	}

	w, ok := windows[class]
	if !ok {
		return nil
	}

	key := fmt.Sprintf("rate_limit:%s:%s", class, identifier)
	now := l.clock.Now()
	nowSec := float64(now.UnixNano()) / 1e9
	windowStart := nowSec - float64(w.seconds)

	if err := l.rdb.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", windowStart)).Err(); err != nil {
		l.log.Warn().Err(err).Msg("rate limiter unreachable, failing open")
		return nil
	}

	count, err := l.rdb.ZCard(ctx, key).Result()
	if err != nil {
		l.log.Warn().Err(err).Msg("rate limiter unreachable, failing open")
		return nil
	}

	if count >= w.requests {
		retryAfter := l.retryAfter(ctx, key, nowSec, w.seconds)
		return apierror.New(apierror.KindRateLimitExceeded, "rate limit exceeded").
			WithExtra("limit", w.requests).
			WithExtra("window", w.seconds).
			WithExtra("retry_after", retryAfter)
	}

	nonce, err := randomHex(4)
	if err != nil {
		return err
	}
	member := fmt.Sprintf("%f:%s", nowSec, nonce)
	if err := l.rdb.ZAdd(ctx, key, redis.Z{Score: nowSec, Member: member}).Err(); err != nil {
		l.log.Warn().Err(err).Msg("rate limiter unreachable, failing open on record step")
		return nil
	}
	l.rdb.Expire(ctx, key, time.Duration(w.seconds)*time.Second)
	return nil
}

// retryAfter computes seconds until the oldest entry in the window falls
// out of it, defaulting to the full window on any error.
func (l *Limiter) retryAfter(ctx context.Context, key string, nowSec float64, windowSeconds int64) int64 {
	oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return windowSeconds
	}
	remaining := oldest[0].Score + float64(windowSeconds) - nowSec
	if remaining < 0 {
		remaining = 0
	}
	return int64(remaining)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
