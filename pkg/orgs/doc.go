// Package orgs is the organizational directory behind policy resolution.
//
// It answers the membership questions the resolver needs before it can build
// a principal: which departments and groups a user belongs to, and whether
// the user is a tenant admin or a platform sysadmin. Membership rows live in
// org_members; admin flags live in tenant_admins.
//
// The package also tracks live sessions in Redis (see SessionRegistry) and
// enforces per-tenant quotas on custom policy definitions and bindings so a
// single tenant cannot grow the catalog without bound.
package orgs
