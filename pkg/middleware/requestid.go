package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/opsgate/gatehouse/pkg/observability"
)

// RequestIDHeader is the header the request id is read from and echoed on.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an id, honoring one supplied by an
// upstream proxy. The id rides the context into logs and audit records.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
