package appopen

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"

	"github.com/opsgate/gatehouse/pkg/observability"
)

var tracer = otel.Tracer("gatehouse/appopen")

const (
	cacheEntries = 4096
	cacheTTL     = 30 * time.Second
)

// Store persists app-open state with a read-through expiring cache on the
// open check.
type Store struct {
	db      *sql.DB
	cache   *lru.LRU[string, bool]
	metrics *observability.Metrics
}

// NewStore creates an app-open store. Metrics may be nil.
func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{
		db:      db,
		cache:   lru.NewLRU[string, bool](cacheEntries, nil, cacheTTL),
		metrics: metrics,
	}
}

func cacheKey(tenantID, appID string, edition Edition) string {
	return tenantID + "/" + appID + "/" + string(edition)
}

// Open records that a tenant opened an app under an edition. Idempotent; a
// repeat open refreshes opened_at.
func (s *Store) Open(ctx context.Context, tenantID, appID string, edition Edition) (*Record, error) {
	ctx, span := tracer.Start(ctx, "AppOpenStore.Open")
	defer span.End()

	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if appID == "" {
		return nil, fmt.Errorf("app_id is required")
	}
	if !edition.Valid() {
		return nil, fmt.Errorf("unrecognized edition %q", edition)
	}

	record := &Record{
		TenantID: tenantID,
		AppID:    appID,
		Edition:  edition,
		OpenedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO app_opens (tenant_id, app_id, edition, opened_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, app_id, edition)
		DO UPDATE SET opened_at = EXCLUDED.opened_at
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		record.TenantID, record.AppID, record.Edition, record.OpenedAt,
	).Scan(&record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open app: %w", err)
	}

	s.cache.Add(cacheKey(tenantID, appID, edition), true)
	return record, nil
}

// Close removes a tenant's open record. Policies of the app stop resolving
// for the tenant as soon as the cached entry ages out.
func (s *Store) Close(ctx context.Context, tenantID, appID string, edition Edition) error {
	ctx, span := tracer.Start(ctx, "AppOpenStore.Close")
	defer span.End()

	query := `DELETE FROM app_opens WHERE tenant_id = $1 AND app_id = $2 AND edition = $3`
	result, err := s.db.ExecContext(ctx, query, tenantID, appID, edition)
	if err != nil {
		return fmt.Errorf("failed to close app: %w", err)
	}

	s.cache.Remove(cacheKey(tenantID, appID, edition))

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("app %s not opened for tenant %s", appID, tenantID)
	}
	return nil
}

// IsOpened reports whether the tenant has the app opened under the edition.
// Served from the cache when fresh.
func (s *Store) IsOpened(ctx context.Context, tenantID, appID string, edition Edition) (bool, error) {
	key := cacheKey(tenantID, appID, edition)
	if opened, ok := s.cache.Get(key); ok {
		s.recordCache(true)
		return opened, nil
	}
	s.recordCache(false)

	query := `SELECT 1 FROM app_opens WHERE tenant_id = $1 AND app_id = $2 AND edition = $3`
	var one int
	err := s.db.QueryRowContext(ctx, query, tenantID, appID, edition).Scan(&one)
	if err == sql.ErrNoRows {
		s.cache.Add(key, false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check app open: %w", err)
	}

	s.cache.Add(key, true)
	return true, nil
}

// ListOpened returns every open record of a tenant.
func (s *Store) ListOpened(ctx context.Context, tenantID string) ([]Record, error) {
	query := `
		SELECT id, tenant_id, app_id, edition, opened_at
		FROM app_opens
		WHERE tenant_id = $1
		ORDER BY opened_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opened apps: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TenantID, &r.AppID, &r.Edition, &r.OpenedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app open: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHitsTotal.WithLabelValues("app_open").Inc()
	} else {
		s.metrics.CacheMissesTotal.WithLabelValues("app_open").Inc()
	}
}
