package orgs

import (
	"errors"
	"fmt"
	"time"
)

// Org unit kinds stored in org_members. They mirror the binding org types in
// the policy tables.
const (
	UnitDept  = "dept"
	UnitGroup = "group"
)

// Member is one user-to-org membership row.
type Member struct {
	ID       int64     `json:"id"`
	UserID   string    `json:"user_id"`
	OrgID    string    `json:"org_id"`
	OrgType  string    `json:"org_type"`
	TenantID string    `json:"tenant_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Admin is a tenant admin record. SysAdmin marks platform operators whose
// rights cross tenant boundaries.
type Admin struct {
	ID       int64  `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	SysAdmin bool   `json:"is_sys_admin"`
}

// Memberships is the directory view of one user inside one tenant.
type Memberships struct {
	DeptIDs     []string `json:"dept_ids"`
	GroupIDs    []string `json:"group_ids"`
	TenantAdmin bool     `json:"tenant_admin"`
	SysAdmin    bool     `json:"sys_admin"`
}

// Quotas bounds a tenant's policy footprint.
type Quotas struct {
	// MaxCustomPolicies caps tenant_custom policy definitions per tenant.
	MaxCustomPolicies int
	// MaxBindings caps policy bindings across the tenant's org units.
	MaxBindings int
}

// DefaultQuotas returns the limits applied when a tenant has no override row.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxCustomPolicies: 500,
		MaxBindings:       20000,
	}
}

// QuotaExceededError reports a tenant hitting one of its limits.
type QuotaExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d", e.Resource, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error.
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}
