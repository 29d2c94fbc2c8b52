package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/browserkit/config"
	"github.com/use-agent/browserkit/models"
	"golang.org/x/time/rate"
)

// idleTTL is how long an unused identity keeps its limiter.
const idleTTL = time.Hour

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore hands out one token bucket per identity. Idle entries are
// swept at most once per sweepEvery, on the request path.
type limiterStore struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	entries    map[string]*limiterEntry
	lastSweep  time.Time
	sweepEvery time.Duration
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	return &limiterStore{
		limit:      rate.Limit(cfg.RequestsPerSecond),
		burst:      cfg.Burst,
		entries:    make(map[string]*limiterEntry),
		lastSweep:  time.Now(),
		sweepEvery: 5 * time.Minute,
	}
}

func (s *limiterStore) get(identity string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.sweepEvery {
		for id, e := range s.entries {
			if now.Sub(e.lastSeen) > idleTTL {
				delete(s.entries, id)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[identity]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[identity] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate. Rejected requests get a
// Retry-After header in whole seconds.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	store := newLimiterStore(cfg)

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString("api_key")
		if identity == "" {
			identity = c.ClientIP()
		}

		now := time.Now()
		limiter := store.get(identity, now)
		if !limiter.AllowN(now, 1) {
			if retry := retryAfter(limiter, now); retry > 0 {
				c.Header("Retry-After", strconv.Itoa(retry))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.Response{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}

// retryAfter estimates the seconds until the next token, or 0 when the
// limiter never refills.
func retryAfter(l *rate.Limiter, now time.Time) int {
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return int(math.Ceil(delay.Seconds()))
}
