// Package auth authenticates callers at the HTTP edge.
//
// Gatehouse does not own user accounts. Identity comes from an upstream
// OIDC provider: the browser flow exchanges an authorization code for an
// ID token, and API calls present the ID token as a bearer credential.
// Either way the package produces an Identity carrying the user id and
// tenant that the resolver and lifecycle handlers key off.
package auth
