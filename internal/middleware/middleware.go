package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const idleTTL = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per X-Client-ID, falling back to the
// remote address.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (r *RateLimiter) Allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) > idleTTL {
		for k, c := range r.clients {
			if now.Sub(c.lastSeen) > idleTTL {
				delete(r.clients, k)
			}
		}
		r.lastSweep = now
	}
	c, ok := r.clients[id]
	if !ok {
		c = &client{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[id] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Client-ID")
		if id == "" {
			id = c.ClientIP()
		}
		if !r.Allow(id) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RateLimited", "message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
