package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"weather-data-backend/internal/model"
)

// GetStationHistory handles GET /api/stations/:station_id/daily?from=&to=.
// The station id is accepted in either raw or prefixed form.
func (h *Handler) GetStationHistory(c *gin.Context) {
	stationID := model.CanonicalStationID(c.Param("station_id"))

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date. Use YYYY-MM-DD."})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date. Use YYYY-MM-DD."})
			return
		}
		to = t
	}
	if to.Before(from) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "'to' must not be before 'from'"})
		return
	}

	rows, err := h.store.DailyHistory(c.Request.Context(), stationID, from, to)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve daily history"})
		return
	}
	c.JSON(http.StatusOK, rows)
}
