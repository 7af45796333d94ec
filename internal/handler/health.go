package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Version is stamped at build time with -ldflags "-X contact-guard/internal/handler.Version=...".
var Version = "dev"

// StoreProbe is the part of the limiter the health endpoints look at.
type StoreProbe interface {
	Ping(ctx context.Context) error
	Backend() string
}

// HealthHandler serves liveness, readiness and status.
type HealthHandler struct {
	store   StoreProbe
	started time.Time
	// Breaker reports the counter store breaker state; optional.
	Breaker func() string
}

func NewHealthHandler(store StoreProbe) *HealthHandler {
	return &HealthHandler{store: store, started: time.Now()}
}

// LivenessResponse represents liveness probe response.
type LivenessResponse struct {
	Status string `json:"status"`
	Time   int64  `json:"timestamp"`
}

// ReadinessResponse represents readiness probe response.
type ReadinessResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	StoreStatus string `json:"storeStatus"`
}

// Liveness returns 200 if the process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "alive", Time: time.Now().Unix()})
}

// Readiness pings the selected counter store and returns 503 if it does not answer.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Status: "ready", Store: h.store.Backend(), StoreStatus: "ok"}
	if err := h.store.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Str("store", resp.Store).Msg("readiness check failed")
		resp.Status = "not_ready"
		resp.StoreStatus = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status returns build and runtime details.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"service":   "contact-guard",
		"version":   Version,
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(h.started).Seconds(),
		"store":     h.store.Backend(),
	}
	if h.Breaker != nil {
		status["breaker"] = h.Breaker()
	}
	writeJSON(w, http.StatusOK, status)
}
