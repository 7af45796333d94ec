package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"contact-guard/internal/service"

	"github.com/rs/zerolog/log"
)

// unknownIP is the shared bucket for requests whose origin cannot be determined.
const unknownIP = "0.0.0.0"

// RateLimit applies the per-IP sliding window before next runs. Denied requests get a 429
// JSON body and a Retry-After counting down to the oldest request leaving the window;
// allowed ones carry X-RateLimit headers.
func RateLimit(l *service.Limiter) func(http.Handler) http.Handler {
	limit := strconv.Itoa(l.IPLimit())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := l.CheckIP(r.Context(), ClientIP(r))

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))

			switch {
			case v.Allowed:
				next.ServeHTTP(w, r)
			case v.Reason == service.ReasonRateLimited:
				w.Header().Set("Retry-After", strconv.Itoa(v.RetryAfterSeconds))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"ok":    false,
					"code":  "RATE_LIMITED",
					"error": "Too many requests. Please try again in a minute.",
				})
			case v.Reason == service.ReasonStoreUnavailable:
				w.Header().Set("Retry-After", strconv.Itoa(v.RetryAfterSeconds))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"ok":    false,
					"code":  "UNAVAILABLE",
					"error": "Service is busy. Please try again shortly.",
				})
			case v.Reason == service.ReasonCanceled:
				// client went away mid-check; nobody reads the response
				return
			default:
				log.Warn().Str("reason", string(v.Reason)).Str("request_id", r.Header.Get(requestIDHeader)).
					Msg("ip check rejected request")
				writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid request"})
			}
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
// contactd is expected to sit behind a proxy that sets these headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return unknownIP
	}
	return host
}
