package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DBLogger appends audit events to PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit_events table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
		actor VARCHAR(64),
		action VARCHAR(32) NOT NULL,
		resource_type VARCHAR(32) NOT NULL,
		resource_id VARCHAR(255) NOT NULL,
		tenant_id VARCHAR(64),
		request_id VARCHAR(100),
		detail JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_id ON audit_events(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log records one event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	var detailJSON []byte
	if event.Detail != nil {
		var err error
		detailJSON, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal detail: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (occurred_at, actor, action, resource_type, resource_id, tenant_id, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.OccurredAt, nullString(event.Actor), event.Action, event.ResourceType,
		event.ResourceID, nullString(event.TenantID), nullString(event.RequestID), detailJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close releases the logger. The database handle is owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}

// Search returns events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]Event, error) {
	var conditions []string
	var args []interface{}

	bind := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Actor != "" {
		conditions = append(conditions, "actor = "+bind(filter.Actor))
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = "+bind(filter.Action))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = "+bind(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = "+bind(filter.ResourceID))
	}
	if filter.TenantID != "" {
		conditions = append(conditions, "tenant_id = "+bind(filter.TenantID))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= "+bind(filter.Since))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "occurred_at < "+bind(filter.Until))
	}

	query := `SELECT id, occurred_at, actor, action, resource_type, resource_id, tenant_id, request_id, detail FROM audit_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", bind(limit), bind(filter.Offset))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ListBefore returns up to limit events older than the cutoff, oldest first.
// Used by the archiver to page through rows pending archival.
func (l *DBLogger) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	query := `
		SELECT id, occurred_at, actor, action, resource_type, resource_id, tenant_id, request_id, detail
		FROM audit_events
		WHERE occurred_at < $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`
	rows, err := l.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Prune deletes events older than the cutoff and returns the removed count.
func (l *DBLogger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return result.RowsAffected()
}

func scanEvent(scanner interface {
	Scan(dest ...interface{}) error
}) (*Event, error) {
	var e Event
	var actor, tenantID, requestID sql.NullString
	var detailJSON []byte

	err := scanner.Scan(
		&e.ID,
		&e.OccurredAt,
		&actor,
		&e.Action,
		&e.ResourceType,
		&e.ResourceID,
		&tenantID,
		&requestID,
		&detailJSON,
	)
	if err != nil {
		return nil, err
	}

	e.Actor = actor.String
	e.TenantID = tenantID.String
	e.RequestID = requestID.String
	if len(detailJSON) > 0 {
		if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detail: %w", err)
		}
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
