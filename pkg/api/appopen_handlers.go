package api

import (
	"net/http"

	"github.com/opsgate/gatehouse/pkg/appopen"
	"github.com/opsgate/gatehouse/pkg/httputil"
	"github.com/opsgate/gatehouse/pkg/policy"
)

type openAppRequest struct {
	TenantID string          `json:"tenant_id"`
	Edition  appopen.Edition `json:"edition"`
}

// openApp handles POST /api/v1/apps/{appID}/open. Opening an app also
// applies its app_open stage grants to the tenant; both steps are
// idempotent, so replaying an open event is harmless.
func (s *Server) openApp(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	var req openAppRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		req.TenantID = identity.TenantID
	}
	if req.Edition == "" {
		req.Edition = appopen.EditionCloud
	}
	if !req.Edition.Valid() {
		httputil.WriteValidationError(w, "edition must be cloud or private")
		return
	}

	record, err := s.deps.AppOpens.Open(r.Context(), req.TenantID, appID, req.Edition)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	granted, err := s.deps.Policies.ApplyStageGrants(r.Context(), identity.UserID, req.TenantID, appID, policy.GrantStageAppOpen)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"record":  record,
		"granted": granted,
	})
}

// closeApp handles DELETE /api/v1/apps/{appID}/open. Grants survive the
// close; they simply stop matching queries until the app is opened again.
func (s *Server) closeApp(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	tenantID := httputil.ParseQueryString(r, "tenant_id", identity.TenantID)
	edition := editionFrom(r)

	if err := s.deps.AppOpens.Close(r.Context(), tenantID, appID, edition); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listOpenedApps handles GET /api/v1/apps/opened.
func (s *Server) listOpenedApps(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := s.caller(w, r)
	if !ok {
		return
	}
	tenantID := httputil.ParseQueryString(r, "tenant_id", identity.TenantID)

	records, err := s.deps.AppOpens.ListOpened(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []appopen.Record{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"apps": records})
}
