package middleware

import (
	"net/http"

	"github.com/telhawk-systems/seccore/internal/httputil"
)

// RequestContext stores the client IP and user agent in the request
// context so services can attribute audit events without touching
// *http.Request.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := httputil.WithRequestContext(r.Context(), httputil.NewRequestContext(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
