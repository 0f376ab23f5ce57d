package api

import (
	"net/http"
	"time"

	"github.com/opsgate/gatehouse/pkg/httputil"
	"github.com/opsgate/gatehouse/pkg/orgs"
)

// addMember handles POST /api/v1/orgs/members.
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var member orgs.Member
	if !httputil.ParseJSONOrError(w, r, &member) {
		return
	}
	if !httputil.RequireNonEmpty(w, member.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, member.OrgID, "org_id") ||
		!httputil.RequireNonEmpty(w, member.TenantID, "tenant_id") {
		return
	}
	if member.OrgType != orgs.UnitDept && member.OrgType != orgs.UnitGroup {
		httputil.WriteValidationError(w, "org_type must be dept or group")
		return
	}

	if err := s.deps.Directory.AddMember(r.Context(), &member); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, member)
}

type removeMemberRequest struct {
	UserID  string `json:"user_id"`
	OrgID   string `json:"org_id"`
	OrgType string `json:"org_type"`
}

// removeMember handles DELETE /api/v1/orgs/members.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req removeMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.OrgID, "org_id") ||
		!httputil.RequireNonEmpty(w, req.OrgType, "org_type") {
		return
	}

	if err := s.deps.Directory.RemoveMember(r.Context(), req.UserID, req.OrgID, req.OrgType); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listMembers handles GET /api/v1/orgs/{orgType}/{orgID}/members.
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	orgType, ok := httputil.ParsePathStringOrError(w, r, "orgType")
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return
	}

	members, err := s.deps.Directory.ListMembers(r.Context(), orgID, orgType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if members == nil {
		members = []orgs.Member{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

type setAdminRequest struct {
	SysAdmin bool `json:"is_sys_admin"`
}

// setAdmin handles PUT /api/v1/tenants/{tenantID}/admins/{userID}.
func (s *Server) setAdmin(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	var req setAdminRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.deps.Directory.SetAdmin(r.Context(), tenantID, userID, req.SysAdmin); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "admin set", nil)
}

// removeAdmin handles DELETE /api/v1/tenants/{tenantID}/admins/{userID}.
func (s *Server) removeAdmin(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	if err := s.deps.Directory.RemoveAdmin(r.Context(), tenantID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getQuotas handles GET /api/v1/tenants/{tenantID}/quotas.
func (s *Server) getQuotas(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantID")
	if !ok {
		return
	}

	quotas, err := s.deps.Directory.GetQuotas(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, quotas)
}

// setQuotas handles PUT /api/v1/tenants/{tenantID}/quotas.
func (s *Server) setQuotas(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantID")
	if !ok {
		return
	}

	var quotas orgs.Quotas
	if !httputil.ParseJSONOrError(w, r, &quotas) {
		return
	}
	if !httputil.RequirePositive(w, int64(quotas.MaxCustomPolicies), "max_custom_policies") ||
		!httputil.RequirePositive(w, int64(quotas.MaxBindings), "max_bindings") {
		return
	}

	if err := s.deps.Directory.SetQuotas(r.Context(), tenantID, quotas); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, quotas)
}

// sessionLogin handles POST /api/v1/sessions/login. The session is always
// the caller's own.
func (s *Server) sessionLogin(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := s.caller(w, r)
	if !ok {
		return
	}

	session := &orgs.Session{
		UserID:   identity.UserID,
		TenantID: identity.TenantID,
		Edition:  string(editionFrom(r)),
		LoginAt:  time.Now().UTC(),
	}
	if err := s.deps.Sessions.Login(r.Context(), session); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// sessionLogout handles POST /api/v1/sessions/logout.
func (s *Server) sessionLogout(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := s.caller(w, r)
	if !ok {
		return
	}

	if err := s.deps.Sessions.Logout(r.Context(), identity.TenantID, identity.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// activeSessions handles GET /api/v1/sessions/active.
func (s *Server) activeSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	tenantID := httputil.ParseQueryString(r, "tenant_id", identity.TenantID)

	users, err := s.deps.Sessions.ActiveUsers(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"tenant_id": tenantID, "users": users})
}
