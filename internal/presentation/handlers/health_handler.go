package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker defines the interface for health checking components
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type namedChecker struct {
	name    string
	checker HealthChecker
}

// HealthHandler handles health check requests.
// The monitor and explorer are required; other components only degrade health.
type HealthHandler struct {
	monitor  HealthChecker
	explorer HealthChecker
	optional []namedChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitor, explorer HealthChecker) *HealthHandler {
	return &HealthHandler{
		monitor:  monitor,
		explorer: explorer,
	}
}

// AddOptional registers a component whose failure marks the service degraded
func (h *HealthHandler) AddOptional(name string, checker HealthChecker) {
	if checker == nil {
		return
	}
	h.optional = append(h.optional, namedChecker{name: name, checker: checker})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
	}

	for _, c := range []namedChecker{{"monitor", h.monitor}, {"explorer", h.explorer}} {
		if err := c.checker.HealthCheck(ctx); err != nil {
			response.Status = "unhealthy"
			response.Services[c.name] = "unhealthy: " + err.Error()
		} else {
			response.Services[c.name] = "healthy"
		}
	}

	for _, c := range h.optional {
		if err := c.checker.HealthCheck(ctx); err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Services[c.name] = "unhealthy: " + err.Error()
		} else {
			response.Services[c.name] = "healthy"
		}
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// Ready handles GET /ready (Kubernetes readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.explorer.HealthCheck(ctx); err != nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// Live handles GET /live (Kubernetes liveness probe). It fails when the
// monitor loop has stopped completing ticks.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.HealthCheck(r.Context()); err != nil {
		http.Error(w, "stalled", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
