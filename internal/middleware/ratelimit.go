package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig configures a process-wide token bucket.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	// ExemptPaths bypass the limiter, e.g. health probes and scrapes.
	ExemptPaths []string
}

// rateLimitBody mirrors the meta block of the API envelope.
const rateLimitBody = `{"meta":{"message":"Rate limit exceeded","status":"error","status_code":429},"service":null,"data":null}`

// RateLimitMiddleware rejects requests beyond the configured rate with 429
// and a Retry-After hint. A non-positive RPS or Burst disables limiting.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	bucket := newTokenBucket(cfg.RPS, cfg.Burst, time.Now)
	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, path := range cfg.ExemptPaths {
		exempt[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if wait, ok := bucket.take(); !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(rateLimitBody))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}

type tokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	updated  time.Time
	now      func() time.Time
}

func newTokenBucket(rps float64, burst int, now func() time.Time) *tokenBucket {
	return &tokenBucket{
		rate:     rps,
		capacity: float64(burst),
		tokens:   float64(burst),
		updated:  now(),
		now:      now,
	}
}

// take spends one token. When none is available it reports how long until
// the next one accrues.
func (b *tokenBucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed.Seconds()*b.rate)
		b.updated = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	deficit := 1 - b.tokens
	return time.Duration(deficit / b.rate * float64(time.Second)), false
}
