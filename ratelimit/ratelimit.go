// Package ratelimit implements the optional ingress limiter, e.g.
// /v1/messages at 10 req/min, as a per-key token bucket: each key holds
// up to Requests tokens, refilled evenly over Per. It is not a sliding
// window, so a key that starts with a full bucket can pass more than
// Requests requests within one Per interval. Grounded on the teacher's cmd/agentflow/middleware.go RateLimiter and
// TenantRateLimiter: a per-key visitor map wrapping golang.org/x/time/rate,
// with a background goroutine evicting stale visitors. This package drops
// the HTTP-middleware wrapper and instead exposes Allow so the http layer
// can decide how to render the 429 in each protocol's own error shape.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit configures one keyed limiter, e.g. 10 requests per minute.
type Limit struct {
	Requests int
	Per      time.Duration
}

// perSecond converts the limit to golang.org/x/time/rate's requests-per-second form.
func (l Limit) perSecond() rate.Limit {
	if l.Per <= 0 || l.Requests <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(l.Requests) / l.Per.Seconds())
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token-bucket limiter. The zero value is not
// usable; construct with New. A nil *Limiter is treated as disabled so
// callers can wire an optional limiter without a nil check at every
// call site.
type Limiter struct {
	limit Limit

	mu       sync.Mutex
	visitors map[string]*visitor

	evictAfter time.Duration
}

// New creates a Limiter enforcing limit per key (e.g. per client IP or
// per API key), evicting visitors idle for longer than 3x the window
// like the teacher's RateLimiter/TenantRateLimiter cleanup tickers.
// The returned cancel func stops the background eviction goroutine;
// callers should defer it for the lifetime of the limiter.
func New(ctx context.Context, limit Limit) (*Limiter, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	evictAfter := limit.Per * 3
	if evictAfter <= 0 {
		evictAfter = 3 * time.Minute
	}
	l := &Limiter{
		limit:      limit,
		visitors:   make(map[string]*visitor),
		evictAfter: evictAfter,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evictStale()
			}
		}
	}()

	return l, cancel
}

func (l *Limiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.evictAfter {
			delete(l.visitors, key)
		}
	}
}

func (l *Limiter) visitorFor(key string) *visitor {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit.perSecond(), l.limit.Requests)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v
}

// Allow reports whether a request under key may proceed. When denied,
// retryAfter is the duration the caller should send back in a
// Retry-After header before the client is likely to succeed.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	if l == nil {
		return true, 0
	}
	v := l.visitorFor(key)
	now := time.Now()
	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, roundUpSeconds(delay)
}

// roundUpSeconds rounds d up to a whole number of seconds, matching the
// integer-seconds granularity a Retry-After header requires.
func roundUpSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	return time.Duration(secs) * time.Second
}
