package policy

import (
	"time"
)

// PolicyType classifies who owns a policy definition.
type PolicyType string

const (
	// TypePlatformPredefined policies ship with the platform catalog and are
	// visible to every tenant that has the owning app opened.
	TypePlatformPredefined PolicyType = "platform_predefined"
	// TypeTenantCustom policies belong to a single tenant's private catalog.
	TypeTenantCustom PolicyType = "tenant_custom"
)

// GrantStage says when a policy grant is applied automatically.
type GrantStage string

const (
	GrantStageSignup  GrantStage = "signup"
	GrantStageAppOpen GrantStage = "app_open"
	GrantStageManual  GrantStage = "manual"
)

// OrgType classifies the target of a policy grant.
type OrgType string

const (
	OrgTypeUser   OrgType = "user"
	OrgTypeDept   OrgType = "dept"
	OrgTypeGroup  OrgType = "group"
	OrgTypeTenant OrgType = "tenant"
)

// Valid reports whether the org type is one of the closed set.
func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeUser, OrgTypeDept, OrgTypeGroup, OrgTypeTenant:
		return true
	}
	return false
}

// GrantScope narrows a tenant-level binding's applicability.
type GrantScope string

const (
	// GrantScopeNone is the zero scope carried by non-tenant bindings.
	GrantScopeNone GrantScope = ""
	// GrantScopeTenantAllUser applies an open-auth tenant binding to every
	// ordinary (non-admin) user of the tenant.
	GrantScopeTenantAllUser GrantScope = "tenant_all_user"
)

// Valid reports whether the grant scope is one of the closed set.
func (s GrantScope) Valid() bool {
	return s == GrantScopeNone || s == GrantScopeTenantAllUser
}

// PlatformTenantID is the sentinel owner recorded on platform-predefined
// policies instead of a real tenant id.
const PlatformTenantID = "platform"

// Policy is a single access-policy definition.
type Policy struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Type        PolicyType `json:"type"`
	IsDefault   bool       `json:"is_default"`
	GrantStage  GrantStage `json:"grant_stage"`
	Description string     `json:"description,omitempty"`
	AppID       string     `json:"app_id"`
	ClientID    string     `json:"client_id,omitempty"`
	Enabled     bool       `json:"enabled"`
	TenantID    string     `json:"tenant_id"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Classified reports whether the policy carries full classification data.
// Once classified, code, type, grant stage, app id and enabled are frozen:
// update and replace keep the stored values no matter what the caller sends.
func (p *Policy) Classified() bool {
	return p.Code != "" && p.Type != "" && p.GrantStage != "" && p.AppID != ""
}

// Binding associates an organizational unit with a policy and carries the
// grant metadata the resolver consumes. Uniquely keyed by
// (org_id, org_type, policy_id); re-granting updates metadata in place.
type Binding struct {
	ID         int64      `json:"id"`
	OrgID      string     `json:"org_id"`
	OrgType    OrgType    `json:"org_type"`
	PolicyID   string     `json:"policy_id"`
	AppID      string     `json:"app_id"`
	GrantedBy  string     `json:"granted_by,omitempty"`
	GrantedAt  time.Time  `json:"granted_at"`
	IsDefault  bool       `json:"is_default"`
	OpenAuth   bool       `json:"open_auth"`
	GrantScope GrantScope `json:"grant_scope,omitempty"`
}

// Grant is the annotation kept alongside a resolved policy. When several
// binding paths reference the same policy the first-observed grant wins.
type Grant struct {
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// ResolvedPolicy is a policy plus the grant annotation it was reached through.
// The effective set is transient; it is never persisted.
type ResolvedPolicy struct {
	Policy
	Grant Grant `json:"grant"`
}

// Principal is the identity policies are resolved for: the user plus the org
// memberships derived from the directory.
type Principal struct {
	UserID     string   `json:"user_id"`
	TenantID   string   `json:"tenant_id"`
	DeptIDs    []string `json:"dept_ids,omitempty"`
	GroupIDs   []string `json:"group_ids,omitempty"`
	IsSysAdmin bool     `json:"is_sys_admin"`
}

// ResolveRequest carries a resolution call's inputs. IsSysAdmin and OrgType
// are required; they are never inferred or defaulted, so the wire types are
// pointers and Validate rejects absent values.
type ResolveRequest struct {
	UserID     string   `json:"user_id"`
	TenantID   string   `json:"tenant_id"`
	DeptIDs    []string `json:"dept_ids,omitempty"`
	GroupIDs   []string `json:"group_ids,omitempty"`
	IsSysAdmin *bool    `json:"is_sys_admin"`
	OrgType    *OrgType `json:"org_type"`
	// OrgID is the browsed org for dept/group/tenant queries. Ignored for
	// user-type resolution, where the principal's own identity is used.
	OrgID string `json:"org_id,omitempty"`
}

// Validate checks the request's required inputs and closed enumerations.
func (r *ResolveRequest) Validate() error {
	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if r.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "required"}
	}
	if r.IsSysAdmin == nil {
		return &ValidationError{Field: "is_sys_admin", Reason: "required"}
	}
	if r.OrgType == nil {
		return &ValidationError{Field: "org_type", Reason: "required"}
	}
	if !r.OrgType.Valid() {
		return &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(*r.OrgType)}
	}
	if *r.OrgType != OrgTypeUser && r.OrgID == "" {
		return &ValidationError{Field: "org_id", Reason: "required for " + string(*r.OrgType) + " queries"}
	}
	return nil
}

// Principal builds the principal embedded in a validated request.
func (r *ResolveRequest) Principal() Principal {
	return Principal{
		UserID:     r.UserID,
		TenantID:   r.TenantID,
		DeptIDs:    r.DeptIDs,
		GroupIDs:   r.GroupIDs,
		IsSysAdmin: r.IsSysAdmin != nil && *r.IsSysAdmin,
	}
}

// CreatePolicyRequest is the payload for creating a policy.
type CreatePolicyRequest struct {
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Type        PolicyType `json:"type"`
	IsDefault   bool       `json:"is_default"`
	GrantStage  GrantStage `json:"grant_stage"`
	Description string     `json:"description,omitempty"`
	AppID       string     `json:"app_id"`
	ClientID    string     `json:"client_id,omitempty"`
	Enabled     bool       `json:"enabled"`
	TenantID    string     `json:"tenant_id"`
}

// UpdatePolicyRequest patches a policy. Only non-nil fields are applied; the
// classification fields are still subject to the immutability rule once set.
type UpdatePolicyRequest struct {
	Name        *string     `json:"name,omitempty"`
	Code        *string     `json:"code,omitempty"`
	Type        *PolicyType `json:"type,omitempty"`
	IsDefault   *bool       `json:"is_default,omitempty"`
	GrantStage  *GrantStage `json:"grant_stage,omitempty"`
	Description *string     `json:"description,omitempty"`
	AppID       *string     `json:"app_id,omitempty"`
	ClientID    *string     `json:"client_id,omitempty"`
	Enabled     *bool       `json:"enabled,omitempty"`
}

// GrantRequest is the payload for granting a policy to an org unit.
type GrantRequest struct {
	OrgID      string     `json:"org_id"`
	OrgType    OrgType    `json:"org_type"`
	PolicyID   string     `json:"policy_id"`
	AppID      string     `json:"app_id"`
	GrantScope GrantScope `json:"grant_scope,omitempty"`
	IsDefault  bool       `json:"is_default"`
	OpenAuth   bool       `json:"open_auth"`
}

// Validate checks the grant's closed enumerations.
func (r *GrantRequest) Validate() error {
	if r.OrgID == "" {
		return &ValidationError{Field: "org_id", Reason: "required"}
	}
	if !r.OrgType.Valid() {
		return &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(r.OrgType)}
	}
	if r.PolicyID == "" {
		return &ValidationError{Field: "policy_id", Reason: "required"}
	}
	if !r.GrantScope.Valid() {
		return &ValidationError{Field: "grant_scope", Reason: "unrecognized value " + string(r.GrantScope)}
	}
	return nil
}

// Page describes pagination of a list call.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"size"`
}

// Offset converts the 1-based page number to a row offset.
func (p Page) Offset() int {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return (n - 1) * p.Limit()
}

// Limit returns the page size, bounded to a sane default.
func (p Page) Limit() int {
	if p.Size <= 0 {
		return 20
	}
	if p.Size > 200 {
		return 200
	}
	return p.Size
}

// PolicyPage is one page of policies plus the total the count projection saw.
type PolicyPage struct {
	Items []Policy `json:"items"`
	Total int64    `json:"total"`
	Page  int      `json:"page"`
	Size  int      `json:"size"`
}
