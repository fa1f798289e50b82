package rest

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is one dependency probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports liveness and dependency readiness.
type HealthHandler struct {
	version string
	checks  map[string]HealthChecker
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(version string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

// RegisterRoutes wires the unauthenticated health endpoints.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleLiveness)
	mux.HandleFunc("GET /readyz", h.handleReadiness)
}

func (h *HealthHandler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *HealthHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  overall,
		"version": h.version,
		"checks":  results,
	})
}
