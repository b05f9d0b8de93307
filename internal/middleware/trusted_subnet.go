package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog/log"
)

// TrustedSubnetMiddleware limits write routes to agents whose X-Real-IP lies
// in trustedSubnet. An empty subnet disables the check; so does an
// unparsable one, which is logged at startup.
func TrustedSubnetMiddleware(trustedSubnet string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if trustedSubnet == "" {
			return next
		}

		prefix, err := netip.ParsePrefix(strings.TrimSpace(trustedSubnet))
		if err != nil {
			log.Warn().Err(err).Str("trusted_subnet", trustedSubnet).Msg("invalid trusted subnet, allowing all requests")
			return next
		}
		prefix = prefix.Masked()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-Real-IP")
			if raw == "" {
				log.Warn().Str("remote_addr", r.RemoteAddr).Str("uri", r.RequestURI).Msg("X-Real-IP header is missing")
				reject(w, http.StatusForbidden, "X-Real-IP header is required")
				return
			}

			addr, err := netip.ParseAddr(strings.TrimSpace(raw))
			if err != nil {
				reject(w, http.StatusForbidden, "X-Real-IP is not an IP address")
				return
			}
			if !prefix.Contains(addr.Unmap()) {
				log.Warn().Str("ip", addr.String()).Str("trusted_subnet", prefix.String()).Msg("request from outside trusted subnet")
				reject(w, http.StatusForbidden, "address is outside the trusted subnet")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
