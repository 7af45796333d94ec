package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"contact-guard/internal/middleware"
	"contact-guard/internal/service"

	"github.com/rs/zerolog/log"
)

// ResetRequest names the counters to clear; at least one field must be set.
type ResetRequest struct {
	IP    string `json:"ip,omitempty"`
	Email string `json:"email,omitempty"`
}

// AdminHandler lets operators clear limiter counters, e.g. after a false positive.
type AdminHandler struct {
	limiter *service.Limiter
}

func NewAdminHandler(l *service.Limiter) *AdminHandler {
	return &AdminHandler{limiter: l}
}

// ServeHTTP handles POST /admin/limits/reset.
func (a *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	err := a.limiter.Reset(r.Context(), req.IP, req.Email)
	switch {
	case errors.Is(err, service.ErrEmptyKey):
		writeError(w, http.StatusBadRequest, "ip or email required")
		return
	case err != nil:
		log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(r.Context())).Msg("counter reset failed")
		writeError(w, http.StatusServiceUnavailable, "Reset failed")
		return
	}

	ev := log.Info().Bool("ip", req.IP != "").Bool("email", req.Email != "")
	if claims, ok := middleware.ClaimsFrom(r.Context()); ok {
		ev = ev.Str("subject", claims.Subject)
	}
	ev.Msg("admin reset counters")
	w.WriteHeader(http.StatusNoContent)
}
