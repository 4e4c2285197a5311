package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttle caps the request rate of the whole server with one token bucket,
// independent of the per-client Limiter.
type Throttle struct {
	limiter  *rate.Limiter
	rejected int64
}

// NewThrottle allows perSecond requests per second with bursts of burst.
// Non-positive values fall back to 50/s and twice the rate.
func NewThrottle(perSecond, burst int) *Throttle {
	if perSecond <= 0 {
		perSecond = 50
	}
	if burst <= 0 {
		burst = 2 * perSecond
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Rejected counts requests turned away so far.
func (t *Throttle) Rejected() int64 {
	return atomic.LoadInt64(&t.rejected)
}

// Middleware answers 429 with a Retry-After hint when the bucket is empty.
func (t *Throttle) Middleware(onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.limiter.Allow() {
				atomic.AddInt64(&t.rejected, 1)
				seconds := int(math.Ceil(1 / float64(t.limiter.Limit())))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
