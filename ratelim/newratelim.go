package ratelim

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	ttl    time.Duration
	keyFor KeyFunc

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter allows perSecond requests per key with the given burst.
// Buckets are forgotten ttl after they were created.
func NewRateLimiter(perSecond float64, burst int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      ttl,
		keyFor:   ClientIP,
		visitors: make(map[string]*rate.Limiter),
	}
}

// WithKey replaces the default per-IP key.
func (rl *RateLimiter) WithKey(fn KeyFunc) *RateLimiter {
	rl.keyFor = fn
	return rl
}

// ClientIP keys requests by remote address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Get or create a rate limiter for key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.visitors[key]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.visitors[key] = limiter

	if rl.ttl > 0 {
		time.AfterFunc(rl.ttl, func() {
			rl.mu.Lock()
			delete(rl.visitors, key)
			rl.mu.Unlock()
		})
	}

	return limiter
}

// Allow reports whether a request for key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Middleware to enforce rate limiting
func (rl *RateLimiter) Limit(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !rl.Allow(rl.keyFor(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next(w, r, ps)
	}
}
