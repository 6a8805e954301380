package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

// sweepInterval is how often expired buckets are purged.
const sweepInterval = time.Minute

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// Buckets are sized on first use from the limit and window of that call and
// dropped after a full window without requests, by which time they would be
// full again anyway.
type RateLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: cache.New(cache.NoExpiration, sweepInterval)}
}

// Allow reports whether a request for key fits within limit per window.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}
	rl.mu.Lock()
	var l *rate.Limiter
	if v, ok := rl.buckets.Get(key); ok {
		l = v.(*rate.Limiter)
	} else {
		l = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	}
	rl.buckets.Set(key, l, window)
	rl.mu.Unlock()
	return l.Allow(), nil
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	return rl.buckets.ItemCount()
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
