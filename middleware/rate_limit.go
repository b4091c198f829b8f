package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/scanvoice/gamify/config"
	"github.com/scanvoice/gamify/utils"
)

// Idle buckets are dropped after this long without a request.
const visitorTTL = 5 * time.Minute

// visitor is one client IP's token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors   = map[string]*visitor{}
	visitorsMu sync.Mutex
)

// RateLimitMiddleware throttles mutating requests per client IP. The mutating
// endpoints are single-shot user actions (one spin, one redeem, one event per
// tap), so the burst stays small relative to the minute budget instead of
// letting a client spend half of it at once.
func RateLimitMiddleware() gin.HandlerFunc {
	cfg := config.Get()
	perMinute := cfg.RateLimitPerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	burst := perMinute / 6
	if burst < 3 {
		burst = 3
	}

	return func(ctx *gin.Context) {
		if !allowRequest(ctx.ClientIP(), limit, burst) {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// allowRequest reserves one token for the client, creating its bucket on
// first sight and sweeping idle ones. rate.Limiter is safe for concurrent
// use; the mutex only guards the map.
func allowRequest(ip string, limit rate.Limit, burst int) bool {
	visitorsMu.Lock()
	now := time.Now()
	for key, v := range visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(visitors, key)
		}
	}
	v, ok := visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		visitors[ip] = v
	}
	v.lastSeen = now
	visitorsMu.Unlock()

	return v.limiter.Allow()
}
