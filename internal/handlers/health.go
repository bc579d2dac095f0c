package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"notemind/internal/contextutil"
)

// HealthStore is the probe surface the health check uses.
type HealthStore interface {
	Counts(ctx context.Context) (notes int64, blocks int64, err error)
	Ready() bool
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	store              HealthStore
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store HealthStore) *HealthHandler {
	return &HealthHandler{
		store:              store,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK if healthy, 503 Service Unavailable if degraded or
// unhealthy. The store is the critical dependency; a pending model
// decision degrades the service (reads work, sync writes are rejected)
// without failing it.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Create context with timeout for health checks
	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string

	if _, _, err := h.store.Counts(checkCtx); err != nil {
		logger.WarnContext(ctx, "store health check failed", "error", err)
		checks["store"] = "error"
		issues = append(issues, "store_unavailable")
	} else {
		checks["store"] = "ok"
	}

	if h.store.Ready() {
		checks["model"] = "registered"
	} else {
		checks["model"] = "pending"
		issues = append(issues, "model_decision_pending")
	}

	// The embedding backend is not probed here: it only matters during
	// sync passes and probing it adds latency to every check.

	status := "healthy"
	httpStatus := http.StatusOK
	if checks["store"] == "error" {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else if len(issues) > 0 {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if len(issues) > 0 {
		response.Issues = issues
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.ErrorContext(ctx, "failed to encode health response", "error", err)
	}
}
