// Package requesttime pins one "now" per request so audit records, domain
// timestamps and relative dates in a turn agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"carepilot/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
