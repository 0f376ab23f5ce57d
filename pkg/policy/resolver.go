package policy

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Resolver computes effective policy sets and answers paged org-scoped
// searches. Every result is computed on demand from the stores; the resolved
// set is never persisted or cached here.
type Resolver struct {
	db DBTX
}

// NewResolver creates a resolver over the given database handle.
func NewResolver(db DBTX) *Resolver {
	return &Resolver{db: db}
}

// Resolve dispatches a validated request. User-type requests resolve the
// caller's own effective set. Dept, group and tenant requests browse another
// org's grants and are restricted to admins; isAdmin is decided by the
// caller from the directory, never inferred here.
func (r *Resolver) Resolve(ctx context.Context, req *ResolveRequest, edition string, isAdmin bool) ([]ResolvedPolicy, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if *req.OrgType == OrgTypeUser {
		return r.ResolveForUser(ctx, req.Principal(), edition, nil)
	}

	if !isAdmin {
		return nil, &PermissionDeniedError{
			Reason: "org-scoped browsing requires admin rights",
		}
	}
	return r.ResolveForOrg(ctx, req.TenantID, edition, req.OrgID, *req.OrgType, nil)
}

// ResolveForUser computes the effective policy set of one principal: policies
// granted to the user directly, through dept or group membership, or at the
// tenant level where the default and open-auth arms apply.
func (r *Resolver) ResolveForUser(ctx context.Context, p Principal, edition string, filters []Filter) ([]ResolvedPolicy, error) {
	ctx, span := tracer.Start(ctx, "Resolver.ResolveForUser")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", p.UserID),
		attribute.String("tenant_id", p.TenantID),
	)

	assembled, err := Assemble(QueryParams{
		TenantID: p.TenantID,
		Edition:  edition,
		Join:     JoinForUser(p),
		Filters:  filters,
	})
	if err != nil {
		return nil, err
	}
	return r.queryResolved(ctx, assembled)
}

// ResolveForOrg computes the grants held by one org unit. Unlike user
// resolution there is no membership expansion: the binding join matches the
// requested (org_id, org_type) exactly.
func (r *Resolver) ResolveForOrg(ctx context.Context, tenantID, edition, orgID string, orgType OrgType, filters []Filter) ([]ResolvedPolicy, error) {
	ctx, span := tracer.Start(ctx, "Resolver.ResolveForOrg")
	defer span.End()
	span.SetAttributes(
		attribute.String("org_id", orgID),
		attribute.String("org_type", string(orgType)),
	)

	if !orgType.Valid() {
		return nil, &ValidationError{Field: "org_type", Reason: "unrecognized value " + string(orgType)}
	}

	assembled, err := Assemble(QueryParams{
		TenantID: tenantID,
		Edition:  edition,
		Join:     JoinForOrg(orgID, orgType),
		Filters:  filters,
	})
	if err != nil {
		return nil, err
	}
	return r.queryResolved(ctx, assembled)
}

// HoldsPolicy reports whether the principal's effective set contains the
// policy with the given id. Disabled policies never satisfy the check.
func (r *Resolver) HoldsPolicy(ctx context.Context, p Principal, edition, policyID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Resolver.HoldsPolicy")
	defer span.End()

	resolved, err := r.ResolveForUser(ctx, p, edition, []Filter{
		{Field: "id", Op: OpEq, Value: policyID},
		{Field: "enabled", Op: OpEq, Value: true},
	})
	if err != nil {
		return false, err
	}
	return len(resolved) > 0, nil
}

// Search answers a paged org-scoped policy listing. Control keys in the
// filter set pick the join target; the remaining filters compile into both
// union branches. The returned total comes from a count projection over the
// identical FROM/JOIN/WHERE, so it always agrees with the rows.
func (r *Resolver) Search(ctx context.Context, p Principal, edition string, filters []Filter, page Page, isAdmin bool) (*PolicyPage, error) {
	ctx, span := tracer.Start(ctx, "Resolver.Search")
	defer span.End()

	controls, columnFilters, err := ExtractControls(filters)
	if err != nil {
		return nil, err
	}

	params := QueryParams{
		TenantID: p.TenantID,
		Edition:  edition,
		Filters:  columnFilters,
	}

	switch {
	case controls.IgnoreAuthOrg:
		// Catalog browsing: no binding join at all.
		if !isAdmin {
			return nil, &PermissionDeniedError{Reason: "catalog browsing requires admin rights"}
		}
		params.IgnoreAuthOrg = true
	case controls.OrgType != nil && *controls.OrgType != OrgTypeUser:
		if !isAdmin {
			return nil, &PermissionDeniedError{Reason: "org-scoped browsing requires admin rights"}
		}
		if controls.OrgID == "" {
			return nil, &ValidationError{Field: ControlOrgID, Reason: "required for " + string(*controls.OrgType) + " queries"}
		}
		params.Join = JoinForOrg(controls.OrgID, *controls.OrgType)
	default:
		params.Join = JoinForUser(p)
	}

	assembled, err := Assemble(params)
	if err != nil {
		return nil, err
	}

	countSQL, countArgs := assembled.Count()
	var total int64
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count policies: %w", err)
	}

	rowsSQL, rowArgs := assembled.Rows(page)
	rows, err := r.db.QueryContext(ctx, rowsSQL, rowArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to search policies: %w", err)
	}
	defer rows.Close()

	items := []Policy{}
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		items = append(items, *policy)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PolicyPage{
		Items: items,
		Total: total,
		Page:  page.Number,
		Size:  page.Limit(),
	}, nil
}

// queryResolved executes the resolve projection and dedupes by policy id.
// The projection orders by grant time, so the kept annotation is the
// first-observed grant for each policy.
func (r *Resolver) queryResolved(ctx context.Context, assembled *Assembled) ([]ResolvedPolicy, error) {
	query, args := assembled.ResolveRows()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policies: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var resolved []ResolvedPolicy
	for rows.Next() {
		rp, err := scanResolvedPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolved policy: %w", err)
		}
		if seen[rp.ID] {
			continue
		}
		seen[rp.ID] = true
		resolved = append(resolved, *rp)
	}
	return resolved, rows.Err()
}

// scanResolvedPolicy scans a policy row plus its grant annotation.
func scanResolvedPolicy(scanner interface {
	Scan(dest ...interface{}) error
}) (*ResolvedPolicy, error) {
	var rp ResolvedPolicy
	var description, clientID, createdBy, updatedBy, grantedBy sql.NullString

	err := scanner.Scan(
		&rp.ID,
		&rp.Name,
		&rp.Code,
		&rp.Type,
		&rp.IsDefault,
		&rp.GrantStage,
		&description,
		&rp.AppID,
		&clientID,
		&rp.Enabled,
		&rp.TenantID,
		&createdBy,
		&rp.CreatedAt,
		&updatedBy,
		&rp.UpdatedAt,
		&grantedBy,
		&rp.Grant.GrantedAt,
	)
	if err != nil {
		return nil, err
	}

	rp.Description = description.String
	rp.ClientID = clientID.String
	rp.CreatedBy = createdBy.String
	rp.UpdatedBy = updatedBy.String
	rp.Grant.GrantedBy = grantedBy.String
	return &rp, nil
}
