// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"net/http"

	"norelock.dev/nowplaying/bot/internal/services/system"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// HealthHandler handles HTTP requests related to system health.
type HealthHandler struct {
	logger    *utils.Logger
	healthSvc *system.HealthService
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(healthSvc *system.HealthService, logger *utils.Logger) *HealthHandler {
	return &HealthHandler{
		logger:    logger.Named("health_handler"),
		healthSvc: healthSvc,
	}
}

// Check handles requests to check the health of the system.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	health := h.healthSvc.GetHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status != system.StatusUp {
		statusCode = http.StatusServiceUnavailable
	}

	utils.RespondWithJSON(w, statusCode, health)
}
