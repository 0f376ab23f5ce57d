// Package appopen tracks which applications a tenant has opened.
//
// Every policy query joins against this table: a policy is only reachable
// while its app is opened for the caller's tenant and edition. Opening is
// idempotent, and reopening an app triggers the app_open stage grants in the
// policy lifecycle manager.
//
// Because the open check sits on the hot resolution path, the store carries a
// small expiring LRU in front of the table. Closes purge the cached entry so
// a revoked app stops resolving within one cache TTL at worst, and
// immediately on the node that processed the close.
package appopen
