package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/auth"
)

// LoggingMiddleware logs method, URI, status, response size, duration and,
// when the request was authenticated, the caller address.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(middleware.LoggingMiddleware)
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		// Inner middleware attaches the caller to its own copy of the request,
		// so it is read back through the holder.
		holder := &callerHolder{}
		next.ServeHTTP(ww, r.WithContext(withCallerHolder(r.Context(), holder)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev = ev.
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Int("status", status).
			Int("size", ww.BytesWritten()).
			Dur("duration", time.Since(start))
		if holder.caller != "" {
			ev = ev.Str("caller", string(holder.caller))
		}
		ev.Msg("handled request")
	})
}

func noteCaller(r *http.Request) {
	if h, ok := r.Context().Value(callerHolderKey{}).(*callerHolder); ok {
		if addr, ok := auth.CallerFromContext(r.Context()); ok {
			h.caller = addr
		}
	}
}
