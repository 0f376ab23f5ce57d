package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/gatehouse/pkg/auth"
	"github.com/opsgate/gatehouse/pkg/observability"
)

func setupRateLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewRateLimiter(client, limit, time.Minute, logger, nil), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	t.Run("AllowsUpToLimit", func(t *testing.T) {
		limiter, _ := setupRateLimiter(t, 3)
		handler := limiter.Middleware(okHandler())

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("SetsRateLimitHeaders", func(t *testing.T) {
		limiter, _ := setupRateLimiter(t, 5)
		handler := limiter.Middleware(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil))
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("CallersAreCountedSeparately", func(t *testing.T) {
		limiter, _ := setupRateLimiter(t, 1)
		handler := limiter.Middleware(okHandler())

		first := httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil)
		first = first.WithContext(auth.WithIdentity(first.Context(),
			&auth.Identity{UserID: "user-1", TenantID: "tenant-1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)

		// The same user again is over the limit.
		again := httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil)
		again = again.WithContext(auth.WithIdentity(again.Context(),
			&auth.Identity{UserID: "user-1", TenantID: "tenant-1"}))
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, again)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		// A different user still gets through.
		other := httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil)
		other = other.WithContext(auth.WithIdentity(other.Context(),
			&auth.Identity{UserID: "user-2", TenantID: "tenant-1"}))
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, other)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("FailsOpenWhenRedisIsDown", func(t *testing.T) {
		limiter, mr := setupRateLimiter(t, 1)
		handler := limiter.Middleware(okHandler())
		mr.Close()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestNewRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(nil, 0, 0, nil, nil)
	assert.Equal(t, 100, limiter.limit)
	assert.Equal(t, time.Minute, limiter.window)
}
