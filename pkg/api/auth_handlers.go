package api

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/opsgate/gatehouse/pkg/httputil"
)

const stateCookie = "gatehouse_oauth_state"

// authLogin handles GET /auth/login: it sends the browser to the identity
// provider with a random state pinned in a short-lived cookie.
func (s *Server) authLogin(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.deps.Authenticator.AuthCodeURL(state), http.StatusFound)
}

// authCallback handles GET /auth/callback: it checks the state, redeems
// the code, and hands the verified identity back to the browser. Token
// storage is the frontend's concern; gatehouse only verifies.
func (s *Server) authCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteBadRequest(w, "state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	identity, err := s.deps.Authenticator.Exchange(r.Context(), code)
	if err != nil {
		httputil.WriteUnauthorized(w, "authentication failed")
		if s.deps.Logger != nil {
			s.deps.Logger.WithError(err).Warn("OIDC code exchange failed")
		}
		return
	}

	// Expire the state cookie.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1})
	httputil.WriteSuccess(w, identity)
}
