package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gatehouse/policy")

// DBTX is the subset of database/sql used by the stores. It is satisfied by
// both *sql.DB and *sql.Tx so the lifecycle service can bind a store to its
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles policy persistence
type Store struct {
	db DBTX
}

// NewStore creates a new policy store
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const policyColumns = `id, name, code, type, is_default, grant_stage, description, app_id, client_id, enabled, tenant_id, created_by, created_at, updated_by, updated_at`

// Add inserts a new policy after checking (app_id, code) and (app_id, name)
// uniqueness. The check only front-runs the unique indexes; a concurrent
// insert that slips past it still surfaces as a ConflictError via the
// constraint violation.
func (s *Store) Add(ctx context.Context, p *Policy) error {
	ctx, span := tracer.Start(ctx, "Store.Add")
	defer span.End()

	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.AppID == "" {
		return &ValidationError{Field: "app_id", Reason: "required"}
	}
	if p.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "required"}
	}

	if err := s.checkUnique(ctx, p.AppID, p.Code, p.Name, ""); err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Code, p.Type, p.IsDefault, p.GrantStage,
		nullString(p.Description), p.AppID, nullString(p.ClientID), p.Enabled,
		p.TenantID, nullString(p.CreatedBy), p.CreatedAt, nullString(p.UpdatedBy), p.UpdatedAt,
	)
	if err != nil {
		if conflict := mapUniqueViolation(err); conflict != nil {
			return conflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	span.SetAttributes(attribute.String("policy.id", p.ID))
	return nil
}

// Update patches an existing policy. Only non-nil request fields are applied.
// Once the policy is classified, code, type, grant stage, app id and enabled
// keep their stored values regardless of the payload.
func (s *Store) Update(ctx context.Context, id string, actor string, req *UpdatePolicyRequest) (*Policy, error) {
	ctx, span := tracer.Start(ctx, "Store.Update")
	defer span.End()

	existing, err := s.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}

	frozen := existing.Classified()
	updated := *existing

	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.ClientID != nil {
		updated.ClientID = *req.ClientID
	}
	if req.IsDefault != nil {
		updated.IsDefault = *req.IsDefault
	}
	if !frozen {
		if req.Code != nil {
			updated.Code = *req.Code
		}
		if req.Type != nil {
			updated.Type = *req.Type
		}
		if req.GrantStage != nil {
			updated.GrantStage = *req.GrantStage
		}
		if req.AppID != nil {
			updated.AppID = *req.AppID
		}
		if req.Enabled != nil {
			updated.Enabled = *req.Enabled
		}
	}

	if err := s.checkUnique(ctx, updated.AppID, updated.Code, updated.Name, id); err != nil {
		return nil, err
	}

	updated.UpdatedBy = actor
	updated.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE policies
		SET name = $1, code = $2, type = $3, is_default = $4, grant_stage = $5,
		    description = $6, app_id = $7, client_id = $8, enabled = $9,
		    updated_by = $10, updated_at = $11
		WHERE id = $12
	`
	_, err = s.db.ExecContext(ctx, query,
		updated.Name, updated.Code, updated.Type, updated.IsDefault, updated.GrantStage,
		nullString(updated.Description), updated.AppID, nullString(updated.ClientID), updated.Enabled,
		nullString(updated.UpdatedBy), updated.UpdatedAt, id,
	)
	if err != nil {
		if conflict := mapUniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	return &updated, nil
}

// Replace overwrites a policy wholesale. An absent id behaves as Add. For an
// existing id the classification fields (code, type, grant stage, app id,
// enabled) are always taken from the stored row; caller-supplied values for
// them are discarded without error, per the documented contract.
func (s *Store) Replace(ctx context.Context, p *Policy) (*Policy, error) {
	ctx, span := tracer.Start(ctx, "Store.Replace")
	defer span.End()

	if p.ID == "" {
		if err := s.Add(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	existing, err := s.GetPolicy(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	replaced := *p
	replaced.Code = existing.Code
	replaced.Type = existing.Type
	replaced.GrantStage = existing.GrantStage
	replaced.AppID = existing.AppID
	replaced.Enabled = existing.Enabled
	replaced.TenantID = existing.TenantID
	replaced.CreatedBy = existing.CreatedBy
	replaced.CreatedAt = existing.CreatedAt

	if err := s.checkUnique(ctx, replaced.AppID, replaced.Code, replaced.Name, p.ID); err != nil {
		return nil, err
	}

	replaced.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE policies
		SET name = $1, is_default = $2, description = $3, client_id = $4,
		    updated_by = $5, updated_at = $6
		WHERE id = $7
	`
	_, err = s.db.ExecContext(ctx, query,
		replaced.Name, replaced.IsDefault, nullString(replaced.Description),
		nullString(replaced.ClientID), nullString(replaced.UpdatedBy), replaced.UpdatedAt, p.ID,
	)
	if err != nil {
		if conflict := mapUniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace failed")
		return nil, fmt.Errorf("failed to replace policy: %w", err)
	}

	return &replaced, nil
}

// Delete hard-deletes policies by id. Bindings are not cascaded; orphans are
// invisible to the resolver and reaped by the sweeper.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "Store.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("policy.count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM policies WHERE id = ANY($1)`
	_, err := s.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete policies: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by id
func (s *Store) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1`

	p, err := scanPolicy(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "policy", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

// GetPolicyByCode retrieves a policy by its (app_id, code) pair
func (s *Store) GetPolicyByCode(ctx context.Context, appID, code string) (*Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE app_id = $1 AND code = $2`

	p, err := scanPolicy(s.db.QueryRowContext(ctx, query, appID, code))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "policy", ID: appID + "/" + code}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy by code: %w", err)
	}
	return p, nil
}

// ListPoliciesByIDs retrieves the policies whose ids are in the given set.
// Missing ids are skipped, not errors.
func (s *Store) ListPoliciesByIDs(ctx context.Context, ids []string) ([]Policy, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = ANY($1) ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// checkUnique verifies (app_id, code) and (app_id, name) uniqueness,
// excluding excludeID so updates don't collide with themselves.
func (s *Store) checkUnique(ctx context.Context, appID, code, name, excludeID string) error {
	if code != "" {
		query := `SELECT id FROM policies WHERE app_id = $1 AND code = $2 AND id <> $3 LIMIT 1`
		var id string
		err := s.db.QueryRowContext(ctx, query, appID, code, excludeID).Scan(&id)
		if err == nil {
			return &ConflictError{Field: "code", Value: code}
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check code uniqueness: %w", err)
		}
	}

	query := `SELECT id FROM policies WHERE app_id = $1 AND name = $2 AND id <> $3 LIMIT 1`
	var id string
	err := s.db.QueryRowContext(ctx, query, appID, name, excludeID).Scan(&id)
	if err == nil {
		return &ConflictError{Field: "name", Value: name}
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check name uniqueness: %w", err)
	}
	return nil
}

// mapUniqueViolation converts a postgres unique-constraint violation into the
// ConflictError the callers expect, or returns nil for other errors.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	if strings.Contains(pqErr.Constraint, "code") {
		return &ConflictError{Field: "code"}
	}
	if strings.Contains(pqErr.Constraint, "name") {
		return &ConflictError{Field: "name"}
	}
	return &ConflictError{Field: "key"}
}

// scanPolicy scans a policy from a database row
func scanPolicy(scanner interface {
	Scan(dest ...interface{}) error
}) (*Policy, error) {
	var p Policy
	var description, clientID, createdBy, updatedBy sql.NullString

	err := scanner.Scan(
		&p.ID,
		&p.Name,
		&p.Code,
		&p.Type,
		&p.IsDefault,
		&p.GrantStage,
		&description,
		&p.AppID,
		&clientID,
		&p.Enabled,
		&p.TenantID,
		&createdBy,
		&p.CreatedAt,
		&updatedBy,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Description = description.String
	p.ClientID = clientID.String
	p.CreatedBy = createdBy.String
	p.UpdatedBy = updatedBy.String
	return &p, nil
}

// nullString maps empty strings to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
