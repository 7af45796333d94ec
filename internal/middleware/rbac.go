package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Admin token roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// RequireRole lets a request through only if the JWT claims in its context carry one of
// roles. It must run after NewJWTMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				log.Warn().Str("role", claims.Role).Str("subject", claims.Subject).Str("path", r.URL.Path).
					Msg("role denied")
				writeJSON(w, http.StatusForbidden, map[string]any{"ok": false, "error": "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
