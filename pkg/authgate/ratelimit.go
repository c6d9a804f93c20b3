package authgate

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
)

// RateLimiter enforces a per-key requests-per-minute ceiling using a
// sliding window of request timestamps. Grounded on
// Sergey-Bar-Alfred/services/gateway/middleware/ratelimit.go's
// in-memory sliding-window shape, adapted to key off the X-API-Key
// header value rather than a bearer token, and folded into authgate
// since the spec places rate-limiting inside the Auth Gate's
// responsibilities rather than as a standalone gateway concern.
type RateLimiter struct {
	rpm int

	mu      sync.Mutex
	windows map[string][]time.Time

	logger zerolog.Logger
}

// NewRateLimiter builds a limiter allowing rpm requests per key per
// rolling minute. rpm <= 0 disables enforcement (Allow always true).
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		rpm:     rpm,
		windows: make(map[string][]time.Time),
		logger:  log.WithComponent("authgate"),
	}
}

// Allow records a request for key and reports whether it fits within
// the rolling window, along with the remaining quota and the time the
// oldest counted request falls out of the window.
func (rl *RateLimiter) Allow(key string) (allowed bool, remaining int, resetAt time.Time) {
	if rl.rpm <= 0 {
		return true, 0, time.Time{}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Minute)

	kept := rl.windows[key][:0]
	for _, t := range rl.windows[key] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.rpm {
		resetAt = kept[0].Add(time.Minute)
		rl.windows[key] = kept
		metrics.RateLimitRejectedTotal.Inc()
		return false, 0, resetAt
	}

	kept = append(kept, now)
	rl.windows[key] = kept
	return true, rl.rpm - len(kept), now.Add(time.Minute)
}

// Cleanup drops keys with no requests in the last two windows, so the
// map doesn't grow unbounded across long-lived processes with a
// rotating set of callers. Intended to be called periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * time.Minute)
	for key, times := range rl.windows {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}

// Middleware wraps next with rate-limit enforcement, keyed by the
// X-API-Key header (falling back to the remote address for callers
// who reach this far without one, e.g. during auth-failure paths that
// still want coarse protection).
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.RemoteAddr
		}

		allowed, remaining, resetAt := rl.Allow(key)
		if rl.rpm > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.rpm))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		}

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"rate limit exceeded"}`))
			rl.logger.Warn().Str("key", MaskKey(key)).Msg("rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
