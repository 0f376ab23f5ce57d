package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/gatehouse/pkg/auth"
)

type staticVerifier struct {
	identity *auth.Identity
	err      error
	token    string
}

func (v *staticVerifier) VerifyToken(ctx context.Context, rawToken string) (*auth.Identity, error) {
	v.token = rawToken
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func TestAuthenticate(t *testing.T) {
	identity := &auth.Identity{UserID: "user-1", TenantID: "tenant-1"}

	t.Run("MissingTokenIsUnauthorized", func(t *testing.T) {
		handler := Authenticate(AuthConfig{Verifier: &staticVerifier{identity: identity}})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MalformedHeaderIsUnauthorized", func(t *testing.T) {
		handler := Authenticate(AuthConfig{Verifier: &staticVerifier{identity: identity}})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("RejectedTokenIsUnauthorized", func(t *testing.T) {
		verifier := &staticVerifier{err: errors.New("expired")}
		handler := Authenticate(AuthConfig{Verifier: verifier})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "bad-token", verifier.token)
	})

	t.Run("ValidTokenCarriesIdentity", func(t *testing.T) {
		var got *auth.Identity
		handler := Authenticate(AuthConfig{Verifier: &staticVerifier{identity: identity}})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = auth.IdentityFromContext(r.Context())
			}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/resolve", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "tenant-1", got.TenantID)
	})

	t.Run("SkipPathsServedWithoutAuth", func(t *testing.T) {
		called := false
		handler := Authenticate(AuthConfig{
			Verifier:  &staticVerifier{err: errors.New("should not be called")},
			SkipPaths: []string{"/auth/login"},
		})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
	})
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", bearerToken(req), "scheme match is case-insensitive")

	req.Header.Set("Authorization", "Bearer")
	assert.Empty(t, bearerToken(req))
}
