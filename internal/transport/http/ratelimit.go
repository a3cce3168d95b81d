package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps a token bucket per client IP. Admin traffic to the role
// engine is bursty (bulk role imports, membership sweeps), so buckets allow a
// configurable burst above the steady rate.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	maxIdle   time.Duration
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-IP rate limiter
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		maxIdle:   10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// Allow reports whether a request from ip may proceed. Buckets idle longer
// than maxIdle are swept out inline, so the map does not grow with drive-by
// addresses.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > rl.maxIdle {
		for key, c := range rl.clients {
			if now.Sub(c.lastSeen) > rl.maxIdle {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	return c.limiter.Allow()
}

// RateLimitMiddleware rejects requests over the per-IP budget with 429
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(getClientIP(r)) {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client address, preferring the first hop recorded
// by a proxy over the socket peer
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
