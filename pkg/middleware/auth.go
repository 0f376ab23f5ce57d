package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/opsgate/gatehouse/pkg/auth"
	"github.com/opsgate/gatehouse/pkg/observability"
)

// TokenVerifier validates a raw bearer credential and returns the caller
// identity. *auth.Authenticator satisfies it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*auth.Identity, error)
}

// AuthConfig configures the authentication middleware.
type AuthConfig struct {
	Verifier TokenVerifier
	Logger   *observability.Logger

	// SkipPaths are served without authentication, e.g. health and the
	// login callback.
	SkipPaths []string
}

// Authenticate rejects requests without a valid bearer token and stores
// the verified identity on the context.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			rawToken := bearerToken(r)
			if rawToken == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			identity, err := cfg.Verifier.VerifyToken(r.Context(), rawToken)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.WithError(err).Debug("rejected bearer token")
				}
				writeAuthError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = observability.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
