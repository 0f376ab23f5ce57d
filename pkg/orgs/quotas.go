package orgs

import (
	"context"
	"database/sql"
	"fmt"
)

// GetQuotas returns the tenant's quota limits, falling back to the defaults
// when no override row exists.
func (d *Directory) GetQuotas(ctx context.Context, tenantID string) (Quotas, error) {
	quotas := DefaultQuotas()

	query := `SELECT max_custom_policies, max_bindings FROM tenant_quotas WHERE tenant_id = $1`
	err := d.db.QueryRowContext(ctx, query, tenantID).Scan(&quotas.MaxCustomPolicies, &quotas.MaxBindings)
	if err == sql.ErrNoRows {
		return quotas, nil
	}
	if err != nil {
		return quotas, fmt.Errorf("failed to get quotas: %w", err)
	}
	return quotas, nil
}

// SetQuotas upserts a tenant's quota override.
func (d *Directory) SetQuotas(ctx context.Context, tenantID string, quotas Quotas) error {
	query := `
		INSERT INTO tenant_quotas (tenant_id, max_custom_policies, max_bindings)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET max_custom_policies = EXCLUDED.max_custom_policies, max_bindings = EXCLUDED.max_bindings
	`
	if _, err := d.db.ExecContext(ctx, query, tenantID, quotas.MaxCustomPolicies, quotas.MaxBindings); err != nil {
		return fmt.Errorf("failed to set quotas: %w", err)
	}
	return nil
}

// CheckPolicyQuota checks whether the tenant can create another custom
// policy definition.
func (d *Directory) CheckPolicyQuota(ctx context.Context, tenantID string) error {
	quotas, err := d.GetQuotas(ctx, tenantID)
	if err != nil {
		return err
	}

	var count int64
	query := `SELECT COUNT(*) FROM policies WHERE tenant_id = $1`
	if err := d.db.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count policies: %w", err)
	}

	if count >= int64(quotas.MaxCustomPolicies) {
		return &QuotaExceededError{
			Resource: "custom_policies",
			Current:  count,
			Limit:    int64(quotas.MaxCustomPolicies),
		}
	}
	return nil
}

// CheckBindingQuota checks whether the tenant can hold another binding. The
// count covers bindings of the tenant's own org units across all org types.
func (d *Directory) CheckBindingQuota(ctx context.Context, tenantID string) error {
	quotas, err := d.GetQuotas(ctx, tenantID)
	if err != nil {
		return err
	}

	var count int64
	query := `
		SELECT COUNT(*)
		FROM policy_bindings b
		WHERE b.org_id = $1 AND b.org_type = 'tenant'
		   OR b.org_id IN (SELECT org_id FROM org_members WHERE tenant_id = $1)
		   OR b.org_id IN (SELECT user_id FROM org_members WHERE tenant_id = $1)
	`
	if err := d.db.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count bindings: %w", err)
	}

	if count >= int64(quotas.MaxBindings) {
		return &QuotaExceededError{
			Resource: "bindings",
			Current:  count,
			Limit:    int64(quotas.MaxBindings),
		}
	}
	return nil
}
