// Package api exposes the gatehouse HTTP surface.
//
// The server mounts three groups of routes under /api/v1: the policy
// lifecycle (definitions, grants, stage grants), resolution (effective
// sets, paged search, single-policy checks), and the supporting directory
// surface (app opens, org membership, quotas, sessions, audit search).
//
// Authorization is coarse: any authenticated user may resolve their own
// effective set; everything org-scoped or mutating requires tenant admin
// rights, looked up per request from the directory.
package api
