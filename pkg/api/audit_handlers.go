package api

import (
	"net/http"
	"time"

	"github.com/opsgate/gatehouse/pkg/audit"
	"github.com/opsgate/gatehouse/pkg/httputil"
)

// searchAuditEvents handles GET /api/v1/audit/events. All filters come in
// as query parameters; zero values are ignored.
func (s *Server) searchAuditEvents(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := audit.SearchFilter{
		Actor:        httputil.ParseQueryString(r, "actor", ""),
		Action:       audit.Action(httputil.ParseQueryString(r, "action", "")),
		ResourceType: audit.ResourceType(httputil.ParseQueryString(r, "resource_type", "")),
		ResourceID:   httputil.ParseQueryString(r, "resource_id", ""),
		TenantID:     httputil.ParseQueryString(r, "tenant_id", identity.TenantID),
		Limit:        limit,
		Offset:       offset,
	}

	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteBadRequest(w, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if until := httputil.ParseQueryString(r, "until", ""); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			httputil.WriteBadRequest(w, "until must be RFC3339")
			return
		}
		filter.Until = t
	}

	events, err := s.deps.AuditSearch.Search(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}
