// rate_limiter.go - Per-client throttling of submissions.
package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientRateLimiter keeps one token bucket per client. Buckets idle for
// longer than the idle period are dropped by Prune.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientRateLimiter allows each client perSecond requests with the given
// burst.
func NewClientRateLimiter(perSecond float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow checks if a request from a client is allowed
func (c *ClientRateLimiter) Allow(client string) bool {
	return c.AllowAt(client, time.Now())
}

// AllowAt is Allow at a given time.
func (c *ClientRateLimiter) AllowAt(client string, now time.Time) bool {
	c.mu.Lock()
	l, ok := c.limiters[client]
	if !ok {
		l = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[client] = l
	}
	l.lastSeen = now
	c.mu.Unlock()

	return l.limiter.AllowN(now, 1)
}

// Prune drops clients not seen since before cutoff and returns how many
// were dropped.
func (c *ClientRateLimiter) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for client, l := range c.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(c.limiters, client)
			n++
		}
	}
	return n
}

// Clients returns the number of tracked clients.
func (c *ClientRateLimiter) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}
