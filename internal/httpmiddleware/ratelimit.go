package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the caller's address. Request headers
// are not trusted here: the limiter runs before the access key is
// verified.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// RateLimiter is an in-memory token bucket per key, refilled per minute.
type RateLimiter struct {
	capacity int
	rate     int
	key      KeyFunc
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewRateLimiter allows perMinute requests per key with bursts up to
// capacity. A nil key uses ClientIP.
func NewRateLimiter(capacity, perMinute int, key KeyFunc) *RateLimiter {
	if capacity <= 0 {
		capacity = perMinute
	}
	if key == nil {
		key = ClientIP
	}
	return &RateLimiter{
		capacity: capacity,
		rate:     perMinute,
		key:      key,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// GinMiddleware rejects requests over the limit with 429 and Retry-After.
func (l *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.allow(l.key(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "PGRST429", "message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// allow takes a token for key. When none is left it reports how long
// until the next refill.
func (l *RateLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true, 0
	}
	perToken := time.Minute / time.Duration(max(l.rate, 1))
	if refill := int(now.Sub(b.last) / perToken); refill > 0 {
		b.tokens = min(b.tokens+refill, l.capacity)
		b.last = b.last.Add(time.Duration(refill) * perToken)
	}
	if b.tokens <= 0 {
		return false, b.last.Add(perToken).Sub(now)
	}
	b.tokens--
	return true, 0
}

// prune drops buckets idle long enough to be full again, at most once a
// minute.
func (l *RateLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < time.Minute {
		return
	}
	l.lastPrune = now
	full := time.Minute * time.Duration(l.capacity) / time.Duration(max(l.rate, 1))
	for k, b := range l.buckets {
		if now.Sub(b.last) >= full {
			delete(l.buckets, k)
		}
	}
}
