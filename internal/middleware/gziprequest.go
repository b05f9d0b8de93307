package middleware

import (
	"compress/gzip"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"
)

// GzipRequestMiddleware inflates gzip request bodies that carry JSON or raw
// key/value blobs. The inflated body is capped at maxBodySize.
func GzipRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "gzip" {
			next.ServeHTTP(w, r)
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || (mediaType != "application/json" && mediaType != "application/octet-stream") {
			reject(w, http.StatusBadRequest, "gzip is only accepted for JSON and octet-stream bodies")
			return
		}

		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			log.Warn().Err(err).Str("uri", r.RequestURI).Msg("malformed gzip body")
			reject(w, http.StatusBadRequest, "malformed gzip body")
			return
		}
		defer zr.Close()

		r.Body = http.MaxBytesReader(w, zr, maxBodySize)
		r.ContentLength = -1
		r.Header.Del("Content-Encoding")
		r.Header.Del("Content-Length")
		next.ServeHTTP(w, r)
	})
}
