package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BindingStore handles org-to-policy grant persistence
type BindingStore struct {
	db DBTX
}

// NewBindingStore creates a new binding store
func NewBindingStore(db DBTX) *BindingStore {
	return &BindingStore{db: db}
}

const bindingColumns = `id, org_id, org_type, policy_id, app_id, granted_by, granted_at, is_default, open_auth, grant_scope`

// Grant records a policy grant for an org unit. Granting is idempotent on
// (org_id, org_type, policy_id): a repeat call updates the grant metadata in
// place instead of duplicating the row.
func (s *BindingStore) Grant(ctx context.Context, b *Binding) error {
	ctx, span := tracer.Start(ctx, "BindingStore.Grant")
	defer span.End()

	if !b.OrgType.Valid() {
		return &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(b.OrgType)}
	}
	if !b.GrantScope.Valid() {
		return &ValidationError{Field: "grant_scope", Reason: "unrecognized value " + string(b.GrantScope)}
	}

	b.GrantedAt = time.Now().UTC()

	query := `
		INSERT INTO policy_bindings (org_id, org_type, policy_id, app_id, granted_by, granted_at, is_default, open_auth, grant_scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (org_id, org_type, policy_id)
		DO UPDATE SET app_id = EXCLUDED.app_id, granted_by = EXCLUDED.granted_by,
		              granted_at = EXCLUDED.granted_at, is_default = EXCLUDED.is_default,
		              open_auth = EXCLUDED.open_auth, grant_scope = EXCLUDED.grant_scope
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		b.OrgID, b.OrgType, b.PolicyID, b.AppID, nullString(b.GrantedBy),
		b.GrantedAt, b.IsDefault, b.OpenAuth, b.GrantScope,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to grant policy: %w", err)
	}
	return nil
}

// Revoke removes the binding keyed by (org_id, org_type, policy_id).
func (s *BindingStore) Revoke(ctx context.Context, orgID string, orgType OrgType, policyID string) error {
	ctx, span := tracer.Start(ctx, "BindingStore.Revoke")
	defer span.End()

	if !orgType.Valid() {
		return &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(orgType)}
	}

	query := `DELETE FROM policy_bindings WHERE org_id = $1 AND org_type = $2 AND policy_id = $3`
	result, err := s.db.ExecContext(ctx, query, orgID, orgType, policyID)
	if err != nil {
		return fmt.Errorf("failed to revoke policy: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &NotFoundError{Resource: "binding", ID: orgID + "/" + string(orgType) + "/" + policyID}
	}
	return nil
}

// RevokeByOrg removes every binding held by an org unit (used when the org
// itself is deleted).
func (s *BindingStore) RevokeByOrg(ctx context.Context, orgID string, orgType OrgType) error {
	if !orgType.Valid() {
		return &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(orgType)}
	}

	query := `DELETE FROM policy_bindings WHERE org_id = $1 AND org_type = $2`
	if _, err := s.db.ExecContext(ctx, query, orgID, orgType); err != nil {
		return fmt.Errorf("failed to revoke org bindings: %w", err)
	}
	return nil
}

// ListBindingsForOrg returns the bindings held by one org unit.
func (s *BindingStore) ListBindingsForOrg(ctx context.Context, orgID string, orgType OrgType) ([]Binding, error) {
	if !orgType.Valid() {
		return nil, &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(orgType)}
	}

	query := `SELECT ` + bindingColumns + ` FROM policy_bindings WHERE org_id = $1 AND org_type = $2 ORDER BY granted_at ASC`
	return s.queryBindings(ctx, query, orgID, orgType)
}

// ListOrgsForPolicy returns every binding referencing a policy, across org
// types.
func (s *BindingStore) ListOrgsForPolicy(ctx context.Context, policyID string) ([]Binding, error) {
	query := `SELECT ` + bindingColumns + ` FROM policy_bindings WHERE policy_id = $1 ORDER BY granted_at ASC`
	return s.queryBindings(ctx, query, policyID)
}

// DeleteOrphans removes bindings whose policy no longer exists. Best-effort
// cleanup for the sweeper; policy deletion itself never cascades here.
func (s *BindingStore) DeleteOrphans(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM policy_bindings b
		WHERE NOT EXISTS (SELECT 1 FROM policies p WHERE p.id = b.policy_id)
	`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned bindings: %w", err)
	}
	return result.RowsAffected()
}

func (s *BindingStore) queryBindings(ctx context.Context, query string, args ...interface{}) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

// scanBinding scans a binding from a database row
func scanBinding(scanner interface {
	Scan(dest ...interface{}) error
}) (*Binding, error) {
	var b Binding
	var grantedBy sql.NullString

	err := scanner.Scan(
		&b.ID,
		&b.OrgID,
		&b.OrgType,
		&b.PolicyID,
		&b.AppID,
		&grantedBy,
		&b.GrantedAt,
		&b.IsDefault,
		&b.OpenAuth,
		&b.GrantScope,
	)
	if err != nil {
		return nil, err
	}

	b.GrantedBy = grantedBy.String
	return &b, nil
}
