// Package ratelimit throttles requests to the serving interface.
package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every request. A zero rate
// disables limiting.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps requests per second with the given burst.
// A non-positive burst defaults to max(1, rps).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), defaultBurst(rps, burst)),
	}
}

func defaultBurst(rps float64, burst int) int {
	if burst > 0 {
		return burst
	}
	if rps < 1 {
		return 1
	}
	return int(rps)
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r.limiter.Limit() == 0 {
		return true
	}
	return r.limiter.Allow()
}

// Middleware rejects requests beyond the rate with 429 Too Many Requests.
// onReject, if set, is called for every rejected request.
func (r *RateLimiter) Middleware(onReject func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Allow() {
				if onReject != nil {
					onReject(req)
				}
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
