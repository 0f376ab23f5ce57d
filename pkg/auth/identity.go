package auth

import (
	"context"

	"github.com/opsgate/gatehouse/pkg/contextkeys"
)

// Identity is the authenticated caller as established by the OIDC edge.
// Membership and admin flags are looked up separately; the token only
// pins down who the caller is and which tenant they belong to.
type Identity struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextkeys.IdentityKey, identity)
}

// IdentityFromContext returns the identity set by the auth middleware,
// or nil for unauthenticated requests.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return identity
}
