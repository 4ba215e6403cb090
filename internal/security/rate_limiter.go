package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/consolemask/internal/config"
)

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu      sync.RWMutex
	enabled bool
	limit   rate.Limit
	burst   int
	clients map[string]*client
	idleTTL time.Duration
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter from cfg. A zero burst falls back to one
// request.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	r := &RateLimiter{
		clients: make(map[string]*client),
		idleTTL: time.Hour,
		now:     time.Now,
	}
	r.Update(cfg)
	return r
}

// Update swaps in new limits. Existing clients get fresh buckets on their next
// request.
func (r *RateLimiter) Update(cfg config.RateLimitConfig) {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.enabled = cfg.Enabled
	r.limit = rate.Limit(float64(cfg.RequestsPerMin) / 60.0)
	r.burst = burst
	r.clients = make(map[string]*client)
}

// Allow reports whether a request from clientIP may proceed now.
func (r *RateLimiter) Allow(clientIP string) bool {
	r.mu.RLock()
	enabled := r.enabled
	r.mu.RUnlock()
	if !enabled {
		return true
	}

	return r.limiterFor(clientIP).AllowN(r.now(), 1)
}

// Enabled reports whether limiting is currently on.
func (r *RateLimiter) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

func (r *RateLimiter) limiterFor(clientIP string) *rate.Limiter {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientIP]
	if !ok {
		c = &client{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = c
	}
	c.lastSeen = now
	return c.limiter
}

// CleanupIdleClients drops buckets that have not been used for an hour.
func (r *RateLimiter) CleanupIdleClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine runs CleanupIdleClients every 30 minutes until ctx is done.
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupIdleClients()
			}
		}
	}()
}
