package middleware

import (
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterCleanEvery = 5 * time.Minute
)

// KeyedLimiter hands out one token bucket per key. Idle buckets expire from
// the cache so the set of keys cannot grow without bound.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
}

// NewKeyedLimiter allows limit events per second with the given burst per key.
func NewKeyedLimiter(limit rate.Limit, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		buckets: cache.New(limiterIdleTTL, limiterCleanEvery),
	}
}

// PerMinute builds a limiter allowing n events per minute per key, with a
// burst of n.
func PerMinute(n int) *KeyedLimiter {
	if n <= 0 {
		return nil
	}
	return NewKeyedLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// Allow reports whether key may proceed now. A nil limiter allows everything.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.limiter(key).Allow()
}

func (l *KeyedLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.buckets.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost the race with another request for the same key.
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// configured rate per client IP with 429 Too Many Requests.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := NewKeyedLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
