package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/insrobot/internal/api/response"
	"github.com/kiranshivaraju/insrobot/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	defaultWindow            = time.Minute
)

// RateLimit provides fixed-window rate limiting through the cache. Callers are
// keyed by token prefix when authenticated and by client IP otherwise.
type RateLimit struct {
	cache          cache.Cache
	requestsPerWin int
	window         time.Duration
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requests int, window time.Duration) *RateLimit {
	if requests <= 0 {
		requests = defaultRequestsPerMinute
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &RateLimit{cache: c, requestsPerWin: requests, window: window}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := getKeyPrefix(r)
		if !ok {
			id = "ip:" + clientIP(r)
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(id), rl.window)
		if err != nil {
			// Fail open: the cache only guards against abuse.
			slog.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerWin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(rl.window).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerWin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerWin) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
