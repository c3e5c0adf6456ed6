// Package limits provides per-client rate and connection limits.
package limits

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a key has no tokens left.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DefaultRetryAfter is advertised when a limiter cannot tell when the next
// token arrives, e.g. one that never refills.
const DefaultRetryAfter = time.Minute

// RateLimiter limits the rate of operations per key.
type RateLimiter interface {
	// Allow returns true if the operation is allowed.
	Allow(key string) bool
}

// TokenBucket keeps one rate.Limiter per key. Keys idle for an hour are
// dropped.
type TokenBucket struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*entry
	lastSweep time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a limiter refilling r tokens per second up to
// burst. A zero rate allows burst operations per key and then none.
func NewTokenBucket(r float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		limit:    rate.Limit(r),
		burst:    burst,
		idle:     time.Hour,
		now:      time.Now,
		limiters: make(map[string]*entry),
	}
}

// Allow checks if an operation is allowed for the given key.
func (tb *TokenBucket) Allow(key string) bool {
	return tb.AllowN(key, 1)
}

// AllowN checks if n operations are allowed for the given key.
func (tb *TokenBucket) AllowN(key string, n int) bool {
	now := tb.now()
	return tb.get(key, now).AllowN(now, n)
}

// RetryAfter estimates how long key must wait for its next token.
func (tb *TokenBucket) RetryAfter(key string) time.Duration {
	if tb.limit <= 0 {
		return DefaultRetryAfter
	}
	now := tb.now()
	missing := 1 - tb.get(key, now).TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(tb.limit) * float64(time.Second))
}

func (tb *TokenBucket) get(key string, now time.Time) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.sweep(now)
	e, ok := tb.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(tb.limit, tb.burst)}
		tb.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Forget drops the limiter for key.
func (tb *TokenBucket) Forget(key string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.limiters, key)
}

// Len returns the number of tracked keys.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.limiters)
}

// sweep drops idle limiters at most once per idle period. Callers hold mu.
func (tb *TokenBucket) sweep(now time.Time) {
	if now.Sub(tb.lastSweep) < tb.idle {
		return
	}
	tb.lastSweep = now
	for key, e := range tb.limiters {
		if now.Sub(e.lastSeen) > tb.idle {
			delete(tb.limiters, key)
		}
	}
}

// Middleware rejects requests over the limit with 429. Limiters that can
// estimate the wait set Retry-After from it.
func Middleware(limiter RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if !limiter.Allow(key) {
				wait := DefaultRetryAfter
				if ra, ok := limiter.(interface{ RetryAfter(string) time.Duration }); ok {
					wait = ra.RetryAfter(key)
				}
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retrySeconds rounds up to whole seconds, at least one.
func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
