package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("gatehouse/orgs")

// Directory answers membership and admin lookups against PostgreSQL.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a directory over the given database handle.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// MembershipsFor returns the dept and group memberships plus admin flags of
// one user within a tenant. This is the single directory round trip the API
// layer makes before resolving policies.
func (d *Directory) MembershipsFor(ctx context.Context, userID, tenantID string) (*Memberships, error) {
	ctx, span := tracer.Start(ctx, "Directory.MembershipsFor")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("tenant_id", tenantID),
	)

	m := &Memberships{}

	query := `
		SELECT org_id, org_type
		FROM org_members
		WHERE user_id = $1 AND tenant_id = $2 AND org_type IN ($3, $4)
		ORDER BY joined_at ASC
	`
	rows, err := d.db.QueryContext(ctx, query, userID, tenantID, UnitDept, UnitGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orgID, orgType string
		if err := rows.Scan(&orgID, &orgType); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		switch orgType {
		case UnitDept:
			m.DeptIDs = append(m.DeptIDs, orgID)
		case UnitGroup:
			m.GroupIDs = append(m.GroupIDs, orgID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var sysAdmin bool
	err = d.db.QueryRowContext(ctx,
		`SELECT is_sys_admin FROM tenant_admins WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&sysAdmin)
	if err == sql.ErrNoRows {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query admin flags: %w", err)
	}

	m.TenantAdmin = true
	m.SysAdmin = sysAdmin
	return m, nil
}

// IsSysAdmin reports whether the user is a platform sysadmin of the tenant.
func (d *Directory) IsSysAdmin(ctx context.Context, userID, tenantID string) (bool, error) {
	var sysAdmin bool
	err := d.db.QueryRowContext(ctx,
		`SELECT is_sys_admin FROM tenant_admins WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&sysAdmin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query sysadmin flag: %w", err)
	}
	return sysAdmin, nil
}

// IsTenantAdmin reports whether the user administers the tenant.
func (d *Directory) IsTenantAdmin(ctx context.Context, userID, tenantID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM tenant_admins WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query tenant admin: %w", err)
	}
	return true, nil
}

// AddMember records a user joining an org unit. Idempotent.
func (d *Directory) AddMember(ctx context.Context, m *Member) error {
	if m.OrgType != UnitDept && m.OrgType != UnitGroup {
		return fmt.Errorf("unrecognized org type %q", m.OrgType)
	}

	query := `
		INSERT INTO org_members (user_id, org_id, org_type, tenant_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, org_id, org_type) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, query, m.UserID, m.OrgID, m.OrgType, m.TenantID); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from an org unit.
func (d *Directory) RemoveMember(ctx context.Context, userID, orgID, orgType string) error {
	query := `DELETE FROM org_members WHERE user_id = $1 AND org_id = $2 AND org_type = $3`
	result, err := d.db.ExecContext(ctx, query, userID, orgID, orgType)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// RemoveOrg removes every membership of an org unit, used when the unit is
// dissolved. The caller revokes the unit's policy bindings separately.
func (d *Directory) RemoveOrg(ctx context.Context, orgID, orgType string) error {
	query := `DELETE FROM org_members WHERE org_id = $1 AND org_type = $2`
	if _, err := d.db.ExecContext(ctx, query, orgID, orgType); err != nil {
		return fmt.Errorf("failed to remove org members: %w", err)
	}
	return nil
}

// SetAdmin upserts a tenant admin record.
func (d *Directory) SetAdmin(ctx context.Context, tenantID, userID string, sysAdmin bool) error {
	query := `
		INSERT INTO tenant_admins (tenant_id, user_id, is_sys_admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET is_sys_admin = EXCLUDED.is_sys_admin
	`
	if _, err := d.db.ExecContext(ctx, query, tenantID, userID, sysAdmin); err != nil {
		return fmt.Errorf("failed to set admin: %w", err)
	}
	return nil
}

// RemoveAdmin drops a tenant admin record.
func (d *Directory) RemoveAdmin(ctx context.Context, tenantID, userID string) error {
	query := `DELETE FROM tenant_admins WHERE tenant_id = $1 AND user_id = $2`
	if _, err := d.db.ExecContext(ctx, query, tenantID, userID); err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	return nil
}

// ListMembers returns the members of one org unit, oldest joins first.
func (d *Directory) ListMembers(ctx context.Context, orgID, orgType string) ([]Member, error) {
	query := `
		SELECT id, user_id, org_id, org_type, tenant_id, joined_at
		FROM org_members
		WHERE org_id = $1 AND org_type = $2
		ORDER BY joined_at ASC
	`
	rows, err := d.db.QueryContext(ctx, query, orgID, orgType)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrgID, &m.OrgType, &m.TenantID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
