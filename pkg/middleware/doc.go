// Package middleware provides the HTTP middleware stack for the gatehouse
// API: request ids, OIDC authentication, and distributed rate limiting.
//
// Handlers downstream read the authenticated identity via
// auth.IdentityFromContext and the request id via observability.GetRequestID.
package middleware
