package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/internal/cache"
)

const (
	defaultRequestsPerWindow = 60
	rateLimitWindow          = time.Minute
)

// RateLimit counts requests per API-key prefix in a fixed redis window.
type RateLimit struct {
	cache             cache.Cache
	requestsPerWindow int
}

// NewRateLimit creates the rate-limit middleware. Non-positive limits fall
// back to the default.
func NewRateLimit(c cache.Cache, requestsPerWindow int) *RateLimit {
	if requestsPerWindow <= 0 {
		requestsPerWindow = defaultRequestsPerWindow
	}
	return &RateLimit{cache: c, requestsPerWindow: requestsPerWindow}
}

// Limit enforces the per-key limit. Requests without an authenticated key
// prefix pass through; redis failures fail open so a cache outage never
// blocks the operator API.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(prefix), rateLimitWindow)
		if err != nil {
			slog.Warn("rate limit counter unavailable", "key_prefix", prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerWindow - int(count)
		if remaining < 0 {
			remaining = 0
		}
		windowSecs := int(rateLimitWindow / time.Second)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateLimitWindow).Unix(), 10))

		if count > int64(rl.requestsPerWindow) {
			w.Header().Set("Retry-After", strconv.Itoa(windowSecs))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
