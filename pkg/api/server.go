package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opsgate/gatehouse/pkg/appopen"
	"github.com/opsgate/gatehouse/pkg/audit"
	"github.com/opsgate/gatehouse/pkg/auth"
	"github.com/opsgate/gatehouse/pkg/httputil"
	"github.com/opsgate/gatehouse/pkg/observability"
	"github.com/opsgate/gatehouse/pkg/orgs"
	"github.com/opsgate/gatehouse/pkg/policy"
)

// Deps carries the server's collaborators. AuditSearch, Sessions and
// Authenticator may be nil; their routes are simply not mounted.
type Deps struct {
	Policies      *policy.Service
	Resolver      *policy.Resolver
	AppOpens      *appopen.Store
	Directory     *orgs.Directory
	Sessions      *orgs.SessionRegistry
	AuditSearch   *audit.DBLogger
	Authenticator *auth.Authenticator
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

// Server is the gatehouse API server.
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer creates the server and mounts all routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Policy lifecycle
	v1.HandleFunc("/policies", s.createPolicy).Methods("POST")
	v1.HandleFunc("/policies/search", s.searchPolicies).Methods("POST")
	v1.HandleFunc("/policies/enable", s.enablePolicies).Methods("POST")
	v1.HandleFunc("/policies/disable", s.disablePolicies).Methods("POST")
	v1.HandleFunc("/policies", s.deletePolicies).Methods("DELETE")
	v1.HandleFunc("/policies/{id}", s.getPolicy).Methods("GET")
	v1.HandleFunc("/policies/{id}", s.updatePolicy).Methods("PATCH")
	v1.HandleFunc("/policies/{id}", s.replacePolicy).Methods("PUT")

	// Grants
	v1.HandleFunc("/grants", s.grantPolicy).Methods("POST")
	v1.HandleFunc("/grants", s.revokePolicy).Methods("DELETE")
	v1.HandleFunc("/tenants/{tenantID}/stage-grants", s.applyStageGrants).Methods("POST")

	// Resolution
	v1.HandleFunc("/resolve", s.resolve).Methods("POST")
	v1.HandleFunc("/resolve/check", s.checkPolicy).Methods("GET")

	// App opens
	v1.HandleFunc("/apps/{appID}/open", s.openApp).Methods("POST")
	v1.HandleFunc("/apps/{appID}/open", s.closeApp).Methods("DELETE")
	v1.HandleFunc("/apps/opened", s.listOpenedApps).Methods("GET")

	// Directory
	v1.HandleFunc("/orgs/members", s.addMember).Methods("POST")
	v1.HandleFunc("/orgs/members", s.removeMember).Methods("DELETE")
	v1.HandleFunc("/orgs/{orgType}/{orgID}/members", s.listMembers).Methods("GET")
	v1.HandleFunc("/tenants/{tenantID}/admins/{userID}", s.setAdmin).Methods("PUT")
	v1.HandleFunc("/tenants/{tenantID}/admins/{userID}", s.removeAdmin).Methods("DELETE")
	v1.HandleFunc("/tenants/{tenantID}/quotas", s.getQuotas).Methods("GET")
	v1.HandleFunc("/tenants/{tenantID}/quotas", s.setQuotas).Methods("PUT")

	// Sessions
	if s.deps.Sessions != nil {
		v1.HandleFunc("/sessions/login", s.sessionLogin).Methods("POST")
		v1.HandleFunc("/sessions/logout", s.sessionLogout).Methods("POST")
		v1.HandleFunc("/sessions/active", s.activeSessions).Methods("GET")
	}

	// Audit
	if s.deps.AuditSearch != nil {
		v1.HandleFunc("/audit/events", s.searchAuditEvents).Methods("GET")
	}

	// Browser login flow
	if s.deps.Authenticator != nil {
		s.router.HandleFunc("/auth/login", s.authLogin).Methods("GET")
		s.router.HandleFunc("/auth/callback", s.authCallback).Methods("GET")
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so the caller can wrap it with the
// middleware chain.
func (s *Server) Router() *mux.Router {
	return s.router
}

// caller resolves the authenticated identity's directory view. It writes
// the error response itself and returns ok=false when the request cannot
// proceed.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (*auth.Identity, *orgs.Memberships, bool) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, false
	}

	memberships, err := s.deps.Directory.MembershipsFor(r.Context(), identity.UserID, identity.TenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}
	return identity, memberships, true
}

// requireAdmin is caller plus a tenant-admin check.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, memberships, ok := s.caller(w, r)
	if !ok {
		return nil, false
	}
	if !memberships.TenantAdmin && !memberships.SysAdmin {
		httputil.WriteForbidden(w, "tenant admin rights required")
		return nil, false
	}
	return identity, true
}

func principalFor(identity *auth.Identity, memberships *orgs.Memberships) policy.Principal {
	return policy.Principal{
		UserID:     identity.UserID,
		TenantID:   identity.TenantID,
		DeptIDs:    memberships.DeptIDs,
		GroupIDs:   memberships.GroupIDs,
		IsSysAdmin: memberships.SysAdmin,
	}
}

// editionFrom reads the edition query parameter, defaulting to cloud.
func editionFrom(r *http.Request) appopen.Edition {
	edition := appopen.Edition(httputil.ParseQueryString(r, "edition", string(appopen.EditionCloud)))
	if !edition.Valid() {
		return appopen.EditionCloud
	}
	return edition
}
