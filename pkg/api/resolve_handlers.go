package api

import (
	"net/http"

	"github.com/opsgate/gatehouse/pkg/httputil"
	"github.com/opsgate/gatehouse/pkg/policy"
)

// resolveRequest is the wire form of a resolution call. The embedded
// request's user and tenant default to the authenticated caller; supplying
// another user's identity requires admin rights.
type resolveRequest struct {
	policy.ResolveRequest
}

// resolve handles POST /api/v1/resolve.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	identity, memberships, ok := s.caller(w, r)
	if !ok {
		return
	}
	isAdmin := memberships.TenantAdmin || memberships.SysAdmin

	var req resolveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.UserID == "" {
		// Self-resolution: fill the principal from the caller's own
		// directory view.
		req.UserID = identity.UserID
		req.TenantID = identity.TenantID
		req.DeptIDs = memberships.DeptIDs
		req.GroupIDs = memberships.GroupIDs
		req.IsSysAdmin = &memberships.SysAdmin
		if req.OrgType == nil {
			orgType := policy.OrgTypeUser
			req.OrgType = &orgType
		}
	} else if req.UserID != identity.UserID && !isAdmin {
		httputil.WriteForbidden(w, "resolving another user requires admin rights")
		return
	}

	edition := string(editionFrom(r))
	resolved, err := s.deps.Resolver.Resolve(r.Context(), &req.ResolveRequest, edition, isAdmin)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if resolved == nil {
		resolved = []policy.ResolvedPolicy{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"policies": resolved})
}

// searchRequest is the wire form of a paged policy search.
type searchRequest struct {
	Filters []policy.Filter `json:"filters,omitempty"`
	Page    int             `json:"page"`
	Size    int             `json:"size"`
}

// searchPolicies handles POST /api/v1/policies/search.
func (s *Server) searchPolicies(w http.ResponseWriter, r *http.Request) {
	identity, memberships, ok := s.caller(w, r)
	if !ok {
		return
	}
	isAdmin := memberships.TenantAdmin || memberships.SysAdmin

	var req searchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	page, err := s.deps.Resolver.Search(
		r.Context(),
		principalFor(identity, memberships),
		string(editionFrom(r)),
		req.Filters,
		policy.Page{Number: req.Page, Size: req.Size},
		isAdmin,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// checkPolicy handles GET /api/v1/resolve/check?policy_id=<id>. It answers
// whether the caller's effective set contains the enabled policy with that
// id.
func (s *Server) checkPolicy(w http.ResponseWriter, r *http.Request) {
	identity, memberships, ok := s.caller(w, r)
	if !ok {
		return
	}

	policyID := httputil.ParseQueryString(r, "policy_id", "")
	if !httputil.RequireNonEmpty(w, policyID, "policy_id") {
		return
	}

	held, err := s.deps.Resolver.HoldsPolicy(
		r.Context(),
		principalFor(identity, memberships),
		string(editionFrom(r)),
		policyID,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"policy_id": policyID, "held": held})
}
