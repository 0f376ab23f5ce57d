package api

import (
	"net/http"

	"github.com/opsgate/gatehouse/pkg/httputil"
	"github.com/opsgate/gatehouse/pkg/policy"
)

// createPolicy handles POST /api/v1/policies.
func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req policy.CreatePolicyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") ||
		!httputil.RequireNonEmpty(w, req.Code, "code") ||
		!httputil.RequireNonEmpty(w, req.AppID, "app_id") ||
		!httputil.RequireNonEmpty(w, req.TenantID, "tenant_id") {
		return
	}

	// Quotas bound tenant catalogs only; the platform catalog is unlimited.
	if req.Type == policy.TypeTenantCustom {
		if err := s.deps.Directory.CheckPolicyQuota(r.Context(), req.TenantID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	created, err := s.deps.Policies.CreatePolicy(r.Context(), identity.UserID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// getPolicy handles GET /api/v1/policies/{id}.
func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.caller(w, r); !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	p, err := s.deps.Policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// updatePolicy handles PATCH /api/v1/policies/{id}.
func (s *Server) updatePolicy(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req policy.UpdatePolicyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	updated, err := s.deps.Policies.UpdatePolicy(r.Context(), id, identity.UserID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

// replacePolicy handles PUT /api/v1/policies/{id}.
func (s *Server) replacePolicy(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var p policy.Policy
	if !httputil.ParseJSONOrError(w, r, &p) {
		return
	}
	p.ID = id

	replaced, err := s.deps.Policies.ReplacePolicy(r.Context(), identity.UserID, &p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, replaced)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// deletePolicies handles DELETE /api/v1/policies.
func (s *Server) deletePolicies(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req idsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		httputil.WriteValidationError(w, "ids is required")
		return
	}

	if err := s.deps.Policies.DeletePolicies(r.Context(), identity.UserID, req.IDs); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// enablePolicies handles POST /api/v1/policies/enable.
func (s *Server) enablePolicies(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

// disablePolicies handles POST /api/v1/policies/disable.
func (s *Server) disablePolicies(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req idsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		httputil.WriteValidationError(w, "ids is required")
		return
	}

	if err := s.deps.Policies.SetEnabled(r.Context(), identity.UserID, req.IDs, enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "updated", map[string]interface{}{"enabled": enabled, "count": len(req.IDs)})
}

// grantPolicy handles POST /api/v1/grants.
func (s *Server) grantPolicy(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req policy.GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.deps.Directory.CheckBindingQuota(r.Context(), identity.TenantID); err != nil {
		writeDomainError(w, err)
		return
	}

	binding, err := s.deps.Policies.GrantPolicy(r.Context(), identity.UserID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, binding)
}

type revokeRequest struct {
	OrgID    string         `json:"org_id"`
	OrgType  policy.OrgType `json:"org_type"`
	PolicyID string         `json:"policy_id"`
}

// revokePolicy handles DELETE /api/v1/grants.
func (s *Server) revokePolicy(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OrgID, "org_id") ||
		!httputil.RequireNonEmpty(w, req.PolicyID, "policy_id") {
		return
	}

	if err := s.deps.Policies.RevokePolicy(r.Context(), identity.UserID, req.OrgID, req.OrgType, req.PolicyID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type stageGrantsRequest struct {
	AppID string            `json:"app_id"`
	Stage policy.GrantStage `json:"stage"`
}

// applyStageGrants handles POST /api/v1/tenants/{tenantID}/stage-grants.
// Sign-up automation calls it with stage signup; app opens go through the
// app-open handler which triggers the app_open stage itself.
func (s *Server) applyStageGrants(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantID")
	if !ok {
		return
	}

	var req stageGrantsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.AppID, "app_id") {
		return
	}
	if req.Stage != policy.GrantStageSignup && req.Stage != policy.GrantStageAppOpen {
		httputil.WriteValidationError(w, "stage must be signup or app_open")
		return
	}

	granted, err := s.deps.Policies.ApplyStageGrants(r.Context(), identity.UserID, tenantID, req.AppID, req.Stage)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"granted": granted})
}
