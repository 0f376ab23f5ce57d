package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if metrics.PolicyOperationsTotal == nil {
		t.Error("PolicyOperationsTotal is nil")
	}
	if metrics.ResolveTotal == nil {
		t.Error("ResolveTotal is nil")
	}
	if metrics.ResolveDuration == nil {
		t.Error("ResolveDuration is nil")
	}
	if metrics.CacheHitsTotal == nil {
		t.Error("CacheHitsTotal is nil")
	}
	if metrics.AuditEventsTotal == nil {
		t.Error("AuditEventsTotal is nil")
	}
	if metrics.SweeperRunsTotal == nil {
		t.Error("SweeperRunsTotal is nil")
	}
	if metrics.ActiveSessionsTotal == nil {
		t.Error("ActiveSessionsTotal is nil")
	}
}

func TestPolicyOperationCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.PolicyOperationsTotal.WithLabelValues("create", "success").Inc()
	metrics.PolicyOperationsTotal.WithLabelValues("create", "success").Inc()
	metrics.PolicyOperationsTotal.WithLabelValues("delete", "error").Inc()

	if got := testutil.ToFloat64(metrics.PolicyOperationsTotal.WithLabelValues("create", "success")); got != 2 {
		t.Errorf("expected 2 successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.PolicyOperationsTotal.WithLabelValues("delete", "error")); got != 1 {
		t.Errorf("expected 1 failed delete, got %v", got)
	}
}

func TestCollectDBStats(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.CollectDBStats(sql.DBStats{
		InUse:        3,
		Idle:         7,
		WaitCount:    2,
		WaitDuration: 1500 * time.Millisecond,
	})

	if got := testutil.ToFloat64(metrics.DBConnectionsActive); got != 3 {
		t.Errorf("expected 3 active connections, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsIdle); got != 7 {
		t.Errorf("expected 7 idle connections, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsWaitDuration); got != 1.5 {
		t.Errorf("expected 1.5s wait duration, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/policies", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/policies", "201")); got != 1 {
		t.Errorf("expected 1 request recorded, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.PolicyOperationsTotal.WithLabelValues("create", "success").Inc()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gatehouse_policy_operations_total") {
		t.Error("expected gatehouse_policy_operations_total in metrics output")
	}
}
