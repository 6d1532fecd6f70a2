package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weather-data-backend/internal/model"
)

// defaultForecastWindow bounds GET /forecast when no range is given.
const defaultForecastWindow = 48 * time.Hour

// GridpointResponse is a gridpoint plus its station mappings.
type GridpointResponse struct {
	model.Gridpoint
	Stations []model.GridpointStationMapping `json:"stations"`
}

// GetGridpoints handles GET /api/gridpoints.
func (h *Handler) GetGridpoints(c *gin.Context) {
	gps, err := h.store.ListGridpoints(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve gridpoints"})
		return
	}
	c.JSON(http.StatusOK, gps)
}

// GetGridpoint handles GET /api/gridpoints/:grid_id.
func (h *Handler) GetGridpoint(c *gin.Context) {
	ctx := c.Request.Context()
	gridID := c.Param("grid_id")

	gp, err := h.store.GetGridpoint(ctx, gridID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Gridpoint not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve gridpoint"})
		return
	}
	mappings, err := h.store.MappingsForGridpoint(ctx, gridID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve station mappings"})
		return
	}
	c.JSON(http.StatusOK, GridpointResponse{Gridpoint: *gp, Stations: mappings})
}

// GetForecast handles GET /api/gridpoints/:grid_id/forecast?from=&to=. It
// returns the current issuance per hourly slot: for each start time, the
// row from the newest forecast covering it.
func (h *Handler) GetForecast(c *gin.Context) {
	gridID := c.Param("grid_id")
	from, to, err := parseRange(c, time.Now().UTC(), defaultForecastWindow)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := h.store.LatestHourly(c.Request.Context(), gridID, from, to)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve forecast"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetGridAggregate handles GET /api/gridpoints/:grid_id/aggregate. The
// rollup is the cached one computed by the last aggregate refresh, not a
// live query.
func (h *Handler) GetGridAggregate(c *gin.Context) {
	gridID := c.Param("grid_id")
	asOf := time.Now().UTC()
	if v := c.Query("as_of"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'as_of' date. Use YYYY-MM-DD."})
			return
		}
		asOf = t
	}
	agg, err := h.store.GetGridAggregate(c.Request.Context(), gridID, asOf)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve aggregate"})
		return
	}
	if agg == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No aggregate computed for gridpoint"})
		return
	}
	c.JSON(http.StatusOK, agg)
}

// parseRange reads optional from/to RFC3339 query params, defaulting to
// [now, now+window).
func parseRange(c *gin.Context, now time.Time, window time.Duration) (time.Time, time.Time, error) {
	from := now
	to := now.Add(window)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, errors.New("invalid 'from' timestamp format, use RFC3339")
		}
		from = t
		to = from.Add(window)
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, errors.New("invalid 'to' timestamp format, use RFC3339")
		}
		to = t
	}
	if !to.After(from) {
		return from, to, errors.New("'to' must be after 'from'")
	}
	return from, to, nil
}
