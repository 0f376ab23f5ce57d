package policy

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// FilterOp is a comparison operator in a generic search filter.
type FilterOp string

const (
	OpEq   FilterOp = "eq"
	OpNe   FilterOp = "ne"
	OpGt   FilterOp = "gt"
	OpGe   FilterOp = "ge"
	OpLt   FilterOp = "lt"
	OpLe   FilterOp = "le"
	OpIn   FilterOp = "in"
	OpLike FilterOp = "like"
)

// Filter is one field/operator/value triple of a generic search.
type Filter struct {
	Field  string        `json:"field"`
	Op     FilterOp      `json:"op"`
	Value  interface{}   `json:"value,omitempty"`
	Values []interface{} `json:"values,omitempty"`
}

// Control keys steer which join variant is assembled. They are pulled out of
// the generic filter set before column compilation so they never leak into
// the WHERE clause as if they were policy columns.
const (
	ControlOrgType       = "orgType"
	ControlOrgID         = "orgId"
	ControlIgnoreAuthOrg = "ignoreAuthOrg"
)

// Controls holds the extracted join-steering values.
type Controls struct {
	OrgType       *OrgType
	OrgID         string
	IgnoreAuthOrg bool
}

// ExtractControls splits the control keys off a generic filter set and
// returns the remaining column filters untouched.
func ExtractControls(filters []Filter) (Controls, []Filter, error) {
	var c Controls
	remaining := make([]Filter, 0, len(filters))

	for _, f := range filters {
		switch f.Field {
		case ControlOrgType:
			v, ok := f.Value.(string)
			if !ok {
				return c, nil, &ValidationError{Field: ControlOrgType, Reason: "must be a string"}
			}
			t := OrgType(v)
			if !t.Valid() {
				return c, nil, &ValidationError{Field: ControlOrgType, Reason: "unrecognized value " + v}
			}
			c.OrgType = &t
		case ControlOrgID:
			v, ok := f.Value.(string)
			if !ok {
				return c, nil, &ValidationError{Field: ControlOrgID, Reason: "must be a string"}
			}
			c.OrgID = v
		case ControlIgnoreAuthOrg:
			switch v := f.Value.(type) {
			case bool:
				c.IgnoreAuthOrg = v
			case string:
				c.IgnoreAuthOrg = v == "true"
			default:
				return c, nil, &ValidationError{Field: ControlIgnoreAuthOrg, Reason: "must be a boolean"}
			}
		default:
			remaining = append(remaining, f)
		}
	}
	return c, remaining, nil
}

// filterColumns whitelists the policy columns reachable from generic filters.
var filterColumns = map[string]string{
	"id":         "p.id",
	"name":       "p.name",
	"code":       "p.code",
	"type":       "p.type",
	"grantStage": "p.grant_stage",
	"isDefault":  "p.is_default",
	"enabled":    "p.enabled",
	"appId":      "p.app_id",
	"clientId":   "p.client_id",
	"createdAt":  "p.created_at",
}

// binder accumulates positional arguments for a single assembled statement.
type binder struct {
	args []interface{}
}

func (b *binder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// compileFilters renders the column filters as AND-joined SQL terms.
func compileFilters(b *binder, filters []Filter) (string, error) {
	var terms []string
	for _, f := range filters {
		col, ok := filterColumns[f.Field]
		if !ok {
			return "", &ValidationError{Field: f.Field, Reason: "unknown filter field"}
		}
		switch f.Op {
		case OpEq:
			terms = append(terms, col+" = "+b.bind(f.Value))
		case OpNe:
			terms = append(terms, col+" <> "+b.bind(f.Value))
		case OpGt:
			terms = append(terms, col+" > "+b.bind(f.Value))
		case OpGe:
			terms = append(terms, col+" >= "+b.bind(f.Value))
		case OpLt:
			terms = append(terms, col+" < "+b.bind(f.Value))
		case OpLe:
			terms = append(terms, col+" <= "+b.bind(f.Value))
		case OpIn:
			if len(f.Values) == 0 {
				return "", &ValidationError{Field: f.Field, Reason: "in filter requires values"}
			}
			terms = append(terms, col+" = ANY("+b.bind(pq.Array(f.Values))+")")
		case OpLike:
			terms = append(terms, col+" LIKE "+b.bind(f.Value))
		default:
			return "", &ValidationError{Field: f.Field, Reason: "unknown filter op " + string(f.Op)}
		}
	}
	if len(terms) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(terms, " AND "), nil
}

// OrgJoin describes the binding-join predicate of an assembled query.
type OrgJoin struct {
	orgType    OrgType
	orgID      string
	userID     string
	tenantID   string
	deptIDs    []string
	groupIDs   []string
	isSysAdmin bool
}

// JoinForUser builds the user-resolution predicate: direct user grants,
// dept/group membership grants, and the tenant-level arm where is_default
// bindings apply to everyone and open_auth bindings apply to sysadmins
// unconditionally but to ordinary users only under tenant_all_user scope.
func JoinForUser(p Principal) OrgJoin {
	return OrgJoin{
		orgType:    OrgTypeUser,
		userID:     p.UserID,
		tenantID:   p.TenantID,
		deptIDs:    p.DeptIDs,
		groupIDs:   p.GroupIDs,
		isSysAdmin: p.IsSysAdmin,
	}
}

// JoinForOrg builds the administrative browsing predicate: an exact
// (org_id, org_type) match with no tenant-fallback expansion.
func JoinForOrg(orgID string, orgType OrgType) OrgJoin {
	return OrgJoin{orgType: orgType, orgID: orgID}
}

func (j OrgJoin) compile(b *binder) string {
	if j.orgType != OrgTypeUser {
		return fmt.Sprintf("b.org_id = %s AND b.org_type = %s",
			b.bind(j.orgID), b.bind(string(j.orgType)))
	}

	arms := []string{
		fmt.Sprintf("(b.org_type = 'user' AND b.org_id = %s)", b.bind(j.userID)),
	}
	if len(j.deptIDs) > 0 {
		arms = append(arms, fmt.Sprintf("(b.org_type = 'dept' AND b.org_id = ANY(%s))", b.bind(pq.Array(j.deptIDs))))
	}
	if len(j.groupIDs) > 0 {
		arms = append(arms, fmt.Sprintf("(b.org_type = 'group' AND b.org_id = ANY(%s))", b.bind(pq.Array(j.groupIDs))))
	}

	openAuth := "b.open_auth = TRUE"
	if !j.isSysAdmin {
		openAuth = fmt.Sprintf("(b.open_auth = TRUE AND b.grant_scope = %s)", b.bind(string(GrantScopeTenantAllUser)))
	}
	arms = append(arms, fmt.Sprintf("(b.org_type = 'tenant' AND b.org_id = %s AND (b.is_default = TRUE OR %s))",
		b.bind(j.tenantID), openAuth))

	return "(" + strings.Join(arms, " OR ") + ")"
}

// QueryParams drives one assembly.
type QueryParams struct {
	// TenantID is the caller's tenant; it selects the tenant-owned union
	// branch and the app-open restriction.
	TenantID string
	// Edition is the tenant's deployment edition used by the app-open check.
	Edition string
	// Join is the binding-join predicate. Ignored when IgnoreAuthOrg is set.
	Join OrgJoin
	// IgnoreAuthOrg drops the binding join for catalog browsing queries.
	IgnoreAuthOrg bool
	// SkipAppOpen drops the app-open restriction. Internal maintenance only.
	SkipAppOpen bool
	Filters     []Filter
}

// Assembled carries the shared FROM/JOIN/WHERE of one query. The row and
// count projections are rendered off the same text and argument list so
// pagination totals always agree with the returned rows.
type Assembled struct {
	base string
	args []interface{}
}

const unionColumns = `p.id, p.name, p.code, p.type, p.is_default, p.grant_stage, p.description, p.app_id, p.client_id, p.enabled, p.tenant_id, p.created_by, p.created_at, p.updated_by, p.updated_at`

// Assemble builds the candidate-set query for the given parameters.
//
// The candidate base set is computed filter-then-union: the tenant-owned
// branch and the platform-predefined branch each carry the compiled column
// filters before the UNION combines them. Do not rewrite this as a single
// filtered scan over the unioned rows; the split keeps index usage on each
// source predictable.
func Assemble(params QueryParams) (*Assembled, error) {
	b := &binder{}

	filterSQL, err := compileFilters(b, params.Filters)
	if err != nil {
		return nil, err
	}
	// The same filter text is reused in the second branch, but placeholders
	// are positional, so the values are bound once per branch.
	tenantBranch := fmt.Sprintf("SELECT %s FROM policies p WHERE p.tenant_id = %s%s",
		unionColumns, b.bind(params.TenantID), filterSQL)

	platformFilterSQL, err := compileFilters(b, params.Filters)
	if err != nil {
		return nil, err
	}
	platformBranch := fmt.Sprintf("SELECT %s FROM policies p WHERE p.type = %s%s",
		unionColumns, b.bind(string(TypePlatformPredefined)), platformFilterSQL)

	var sb strings.Builder
	sb.WriteString("FROM (\n\t")
	sb.WriteString(tenantBranch)
	sb.WriteString("\n\tUNION\n\t")
	sb.WriteString(platformBranch)
	sb.WriteString("\n) p")

	if !params.IgnoreAuthOrg {
		sb.WriteString("\nJOIN policy_bindings b ON b.policy_id = p.id AND ")
		sb.WriteString(params.Join.compile(b))
	}

	if !params.SkipAppOpen {
		sb.WriteString(fmt.Sprintf("\nJOIN app_opens ao ON ao.app_id = p.app_id AND ao.tenant_id = %s AND ao.edition = %s",
			b.bind(params.TenantID), b.bind(params.Edition)))
	}

	return &Assembled{base: sb.String(), args: b.args}, nil
}

// Rows renders the paged row projection: distinct policies ordered by id.
func (a *Assembled) Rows(page Page) (string, []interface{}) {
	args := make([]interface{}, len(a.args), len(a.args)+2)
	copy(args, a.args)
	sql := fmt.Sprintf("SELECT DISTINCT %s\n%s\nORDER BY p.id ASC LIMIT $%d OFFSET $%d",
		unionColumns, a.base, len(args)+1, len(args)+2)
	args = append(args, page.Limit(), page.Offset())
	return sql, args
}

// Count renders the count projection over the identical FROM/JOIN/WHERE.
func (a *Assembled) Count() (string, []interface{}) {
	return "SELECT COUNT(DISTINCT p.id)\n" + a.base, a.args
}

// ResolveRows renders the unpaged projection used for effective-set
// resolution, carrying the grant metadata of each matched binding. Rows come
// back ordered by grant time so the caller's first-observed dedup is stable.
func (a *Assembled) ResolveRows() (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s, b.granted_by, b.granted_at\n%s\nORDER BY b.granted_at ASC, p.id ASC",
		unionColumns, a.base)
	return sql, a.args
}
