package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetActiveAlerts handles GET /api/alerts/active. Activity is derived at
// query time from the stored lifecycle timestamps, so an alert drops out of
// this listing the moment it expires with no writer involved.
func (h *Handler) GetActiveAlerts(c *gin.Context) {
	now := time.Now().UTC()
	if v := c.Query("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'at' timestamp format. Use RFC3339."})
			return
		}
		now = t
	}
	alerts, err := h.store.ActiveAlerts(c.Request.Context(), now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}
