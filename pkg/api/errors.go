package api

import (
	"net/http"

	"github.com/opsgate/gatehouse/pkg/httputil"
	"github.com/opsgate/gatehouse/pkg/orgs"
	"github.com/opsgate/gatehouse/pkg/policy"
)

// writeDomainError maps a domain error to its HTTP status. Anything not in
// the taxonomy is a 500 with the message passed through.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case policy.IsValidation(err):
		httputil.WriteValidationError(w, err.Error())
	case policy.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case policy.IsConflict(err):
		httputil.WriteConflict(w, err.Error())
	case policy.IsPermissionDenied(err):
		httputil.WriteForbidden(w, err.Error())
	case orgs.IsQuotaExceeded(err):
		httputil.WriteTooManyRequests(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
