package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/tenantsvc/internal/api/response"
	"github.com/kiranshivaraju/tenantsvc/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	defaultWindow            = time.Minute
)

// RateLimit caps requests per API key in fixed windows aligned to the
// window length. Counters live in Redis so every replica shares them.
type RateLimit struct {
	cache  cache.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithWindow sets the window length. Non-positive values are ignored.
func WithWindow(d time.Duration) RateLimitOption {
	return func(rl *RateLimit) {
		if d > 0 {
			rl.window = d
		}
	}
}

// WithRateLimitClock replaces time.Now.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) {
		rl.now = now
	}
}

// NewRateLimit allows limit requests per window for each key; limit <= 0
// means the default of 60.
func NewRateLimit(c cache.Cache, limit int, opts ...RateLimitOption) *RateLimit {
	if limit <= 0 {
		limit = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, limit: limit, window: defaultWindow, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit counts the request against the key prefix set by Authenticate.
// Requests without a prefix pass through. A Redis failure lets the request
// through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		start := rl.now().Truncate(rl.window)
		reset := start.Add(rl.window)
		key := cache.RateLimitKey(prefix) + ":" + strconv.FormatInt(start.Unix(), 10)

		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rl.window)
		if err != nil {
			slog.WarnContext(r.Context(), "rate limit check failed",
				"key_prefix", prefix, "request_id", RequestID(r.Context()), "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.limit-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.limit) {
			retry := int(reset.Sub(rl.now()).Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			slog.InfoContext(r.Context(), "rate limited",
				"key_prefix", prefix, "request_id", RequestID(r.Context()), "count", count)
			response.Error(w, http.StatusTooManyRequests,
				response.CodeTooManyRequests, "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
