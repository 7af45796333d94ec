package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 64 << 10

// RequestSizeLimit rejects bodies declared larger than maxBytes and caps the rest.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				log.Warn().
					Int64("content_length", r.ContentLength).
					Int64("max_size", maxBytes).
					Str("request_id", r.Header.Get(requestIDHeader)).
					Msg("request body too large")
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
					"ok":    false,
					"error": "Payload too large",
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
