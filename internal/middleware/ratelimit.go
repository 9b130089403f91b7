package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/tenant"
)

// RateLimited is the error code for throttled requests.
const RateLimited = "RATE_LIMITED"

type cityLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimitByCity applies one token bucket per bound city, so a flood
// aimed at one city cannot starve the others.  Requests with no tenant
// bound pass through.  Stale buckets are dropped every 10 minutes until
// ctx is done.
func RateLimitByCity(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[uint64]*cityLimiter)
	)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				cutoff := time.Now().Add(-30 * time.Minute)
				for id, cl := range limiters {
					if cl.lastAccess.Before(cutoff) {
						delete(limiters, id)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	limiterFor := func(cityID uint64) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		cl, ok := limiters[cityID]
		if !ok {
			cl = &cityLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
			limiters[cityID] = cl
		}
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cityID, ok := tenant.CityIDFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !limiterFor(cityID).Allow() {
				w.Header().Set("Retry-After", "1")
				httperr.Write(w, http.StatusTooManyRequests, RateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
