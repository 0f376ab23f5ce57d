// Package httputil carries the request parsing and response writing
// conventions shared by every gatehouse handler.
//
// Responses are JSON. Successful payloads are written as-is; errors use a
// single {"error": message} shape so callers never branch on body layout:
//
//	httputil.WriteSuccess(w, map[string]interface{}{"policies": resolved})
//	httputil.WriteCreated(w, created)
//	httputil.WriteForbidden(w, "tenant admin rights required")
//
// Request helpers pair a parse with its failure response, so handlers read
// as a straight line of guarded steps:
//
//	var req createPolicyRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	policyID, ok := httputil.ParsePathStringOrError(w, r, "id")
//	if !ok {
//		return
//	}
//
// Cross-cutting middleware (request ids, auth, rate limiting) lives in
// pkg/middleware; this package stays handler-local.
package httputil
