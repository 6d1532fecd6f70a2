package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetUpstreamHealth handles GET /api/health/upstreams, the rolling one-hour
// classification per upstream service.
func (h *Handler) GetUpstreamHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.SnapshotAll())
}

// GetUpstreamHealthFor handles GET /api/health/upstreams/:service.
func (h *Handler) GetUpstreamHealthFor(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.SnapshotFor(c.Param("service")))
}

// GetIngestRuns handles GET /api/ingest/runs?limit=.
func (h *Handler) GetIngestRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit'"})
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve ingest runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetIngestRunEvents handles GET /api/ingest/runs/:run_id/events.
func (h *Handler) GetIngestRunEvents(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID"})
		return
	}
	events, err := h.store.ListEvents(c.Request.Context(), runID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve run events"})
		return
	}
	c.JSON(http.StatusOK, events)
}
