package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker probes the stores gatehouse depends on. Postgres holds the
// policies and bindings, so it gates readiness. Redis only backs sessions
// and rate limiting; losing it degrades the service without taking it down.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a checker over the given handles. Either handle
// may be nil, in which case that probe is skipped.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// Health is the readiness report returned to probes.
type Health struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one dependency's probe outcome.
type CheckResult struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Liveness answers the liveness probe. It only confirms the process is
// serving; dependency state belongs to readiness.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness probes every dependency and answers 503 only when the service
// cannot resolve policies at all.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(health)
}

// Check probes the configured dependencies and folds their outcomes into an
// overall status.
func (h *HealthChecker) Check(ctx context.Context) Health {
	health := Health{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	if h.db != nil {
		result := h.checkPostgres(ctx)
		health.Checks["postgres"] = result
		if result.Status != StatusHealthy {
			health.Status = result.Status
		}
	}

	if h.redis != nil {
		result := h.checkRedis(ctx)
		health.Checks["redis"] = result
		// Redis failures never fail readiness outright.
		if result.Status == StatusUnhealthy && health.Status == StatusHealthy {
			health.Status = StatusDegraded
		}
	}

	return health
}

func (h *HealthChecker) checkPostgres(ctx context.Context) CheckResult {
	start := time.Now()

	var one int
	err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	result := CheckResult{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Detail = err.Error()
		return result
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		result.Status = StatusDegraded
		result.Detail = "connection pool exhausted"
	}
	return result
}

func (h *HealthChecker) checkRedis(ctx context.Context) CheckResult {
	start := time.Now()

	err := h.redis.Ping(ctx).Err()
	result := CheckResult{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Detail = err.Error()
	}
	return result
}

// RegisterHealthRoutes mounts the probe endpoints on mux. The bare /health
// path aliases readiness for load balancers that only take one URL.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
