package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/duckmesh/tableagent/internal/auth"
)

// RateLimiter keeps one token bucket per authenticated subject. Requests
// without an identity share a single bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter returns nil when perSecond is not positive, which disables
// limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (l *RateLimiter) Allow(r *http.Request) bool {
	key := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		key = identity.Subject
	}
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
