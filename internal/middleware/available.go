package middleware

import (
	"context"
	"net/http"
	"time"
)

// AvailabilityChecker reports whether the ledger accepts writes.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context) bool
}

// RequireAvailable answers 503 while the ledger is paused or its storage is
// unreachable.
func RequireAvailable(checker AvailabilityChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			ok := checker.IsAvailable(ctx)
			cancel()
			if !ok {
				w.Header().Set("Retry-After", "5")
				reject(w, http.StatusServiceUnavailable, "ledger is not available")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
