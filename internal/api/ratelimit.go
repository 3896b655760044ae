package api

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Limiters of clients idle this long are evicted.
const (
	limiterIdleTTL       = 10 * time.Minute
	limiterCleanupPeriod = time.Minute
)

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *gocache.Cache
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	if burst <= 0 {
		burst = perMinute / 2
		if burst == 0 {
			burst = 1
		}
	}
	return &rateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		limiters: gocache.New(limiterIdleTTL, limiterCleanupPeriod),
	}
}

func (l *rateLimiter) allow(client string) bool {
	return l.get(client).Allow()
}

func (l *rateLimiter) get(client string) *rate.Limiter {
	if v, ok := l.limiters.Get(client); ok {
		lim := v.(*rate.Limiter) //nolint:errcheck // only *rate.Limiter is stored
		l.limiters.SetDefault(client, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	// Add fails if another request for the same client won the race.
	if err := l.limiters.Add(client, lim, gocache.DefaultExpiration); err != nil {
		if v, ok := l.limiters.Get(client); ok {
			return v.(*rate.Limiter) //nolint:errcheck // only *rate.Limiter is stored
		}
	}
	return lim
}
