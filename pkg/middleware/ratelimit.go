package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/opsgate/gatehouse/pkg/auth"
	"github.com/opsgate/gatehouse/pkg/observability"
)

// RateLimiter enforces a fixed-window request limit per caller, shared
// across instances through Redis. Redis being down never blocks traffic;
// the limiter fails open and logs.
type RateLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *observability.Logger, metrics *observability.Metrics) *RateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window, logger: logger, metrics: metrics}
}

// Middleware applies the limit keyed by the authenticated user, falling
// back to the remote address for unauthenticated paths.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.RemoteAddr
		if identity := auth.IdentityFromContext(r.Context()); identity != nil {
			caller = identity.TenantID + ":" + identity.UserID
		}

		count, err := l.take(r, caller)
		if err != nil {
			if l.logger != nil {
				l.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			}
			next.ServeHTTP(w, r)
			return
		}

		remaining := l.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > l.limit {
			if l.metrics != nil {
				l.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "429").Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			writeAuthError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) take(r *http.Request, caller string) (int, error) {
	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("gatehouse:ratelimit:%s:%d", caller, windowStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(r.Context(), key)
	// Expiry a window past the boundary keeps the key around for the
	// Retry-After period without leaking it forever.
	pipe.Expire(r.Context(), key, 2*l.window)
	if _, err := pipe.Exec(r.Context()); err != nil {
		return 0, fmt.Errorf("failed to count request: %w", err)
	}
	return int(incr.Val()), nil
}
