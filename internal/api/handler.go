package api

import (
	"weather-data-backend/internal/metrics"
	"weather-data-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store  store.Store
	health *metrics.HealthTracker
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, health *metrics.HealthTracker) *Handler {
	return &Handler{store: s, health: health}
}
