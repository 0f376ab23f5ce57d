// Package contextkeys defines the context keys shared across gatehouse
// packages. Keeping them in one place avoids import cycles between the
// middleware that sets values and the handlers that read them.
package contextkeys

type contextKey string

const (
	// IdentityKey carries the authenticated *auth.Identity.
	IdentityKey contextKey = "identity"

	// TenantIDKey carries the tenant the request is scoped to.
	TenantIDKey contextKey = "tenant_id"

	// EditionKey carries the deployment edition the request targets.
	EditionKey contextKey = "edition"
)
