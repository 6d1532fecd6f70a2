package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// trackedPointRequest is the body for PUT /api/points.
type trackedPointRequest struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat" binding:"required"`
	Lon  float64 `json:"lon" binding:"required"`
}

// GetTrackedPoints handles GET /api/points.
func (h *Handler) GetTrackedPoints(c *gin.Context) {
	points, err := h.store.ListTrackedPoints(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tracked points"})
		return
	}
	c.JSON(http.StatusOK, points)
}

// PutTrackedPoint handles PUT /api/points. Points collapse on (lat, lon), so
// re-adding a coordinate updates its name.
func (h *Handler) PutTrackedPoint(c *gin.Context) {
	var req trackedPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range"})
		return
	}
	tp, err := h.store.UpsertTrackedPoint(c.Request.Context(), req.Name, req.Lat, req.Lon)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to save tracked point"})
		return
	}
	c.JSON(http.StatusOK, tp)
}

// DeleteTrackedPoint handles DELETE /api/points/:id.
func (h *Handler) DeleteTrackedPoint(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid point ID"})
		return
	}
	if err := h.store.DeleteTrackedPoint(c.Request.Context(), id); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete tracked point"})
		return
	}
	c.Status(http.StatusNoContent)
}
