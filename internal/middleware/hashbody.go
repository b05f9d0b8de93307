package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/pkg/hash"
)

// HashValidationMiddleware checks the HashSHA256 header of a request against
// the HMAC of its (already inflated) body.
//
// With an empty key the check is off. A request without the header, or with
// "none", is passed through unchecked; a present but wrong signature is 400.
//
// Example:
//
//	r.Use(middleware.GzipRequestMiddleware)
//	r.Use(middleware.HashValidationMiddleware(cfg.Key))
func HashValidationMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.Header.Get(hash.HeaderName)
			if signature == "" || signature == "none" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				reject(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !hash.ValidateHash(body, key, signature) {
				log.Warn().Str("uri", r.RequestURI).Str("remote_addr", r.RemoteAddr).Msg("request signature mismatch")
				reject(w, http.StatusBadRequest, "request signature mismatch")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
