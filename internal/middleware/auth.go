package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/model"
)

// TokenParser resolves a bearer token to a wallet address.
type TokenParser interface {
	ParseToken(token string) (model.Address, error)
}

// RequireCaller rejects requests without a valid "Authorization: Bearer"
// token with 401 and stores the caller address in the request context.
func RequireCaller(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				reject(w, http.StatusUnauthorized, "bearer token is required")
				return
			}

			addr, err := parser.ParseToken(strings.TrimSpace(token))
			if err != nil {
				log.Warn().Err(err).Str("uri", r.RequestURI).Msg("rejected session token")
				reject(w, http.StatusUnauthorized, "invalid session token")
				return
			}

			r = r.WithContext(auth.WithCaller(r.Context(), addr))
			noteCaller(r)
			next.ServeHTTP(w, r)
		})
	}
}
