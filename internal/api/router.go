package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"weather-data-backend/config"
	"weather-data-backend/internal/metrics"
	"weather-data-backend/internal/mw"
	"weather-data-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, health *metrics.HealthTracker, reg *prometheus.Registry) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, health)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), int(cfg.RateLimitPerSec), cfg.RequestIPHeader)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.ResponseCache(cacheStore, cacheTTL)

	if reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/points", handler.GetTrackedPoints)
		api.PUT("/points", handler.PutTrackedPoint)
		api.DELETE("/points/:id", handler.DeleteTrackedPoint)

		api.GET("/gridpoints", caching, handler.GetGridpoints)
		api.GET("/gridpoints/:grid_id", caching, handler.GetGridpoint)
		api.GET("/gridpoints/:grid_id/forecast", caching, handler.GetForecast)
		api.GET("/gridpoints/:grid_id/aggregate", caching, handler.GetGridAggregate)

		api.GET("/alerts/active", caching, handler.GetActiveAlerts)

		api.GET("/stations/:station_id/daily", caching, handler.GetStationHistory)

		api.GET("/health/upstreams", handler.GetUpstreamHealth)
		api.GET("/health/upstreams/:service", handler.GetUpstreamHealthFor)

		api.GET("/ingest/runs", handler.GetIngestRuns)
		api.GET("/ingest/runs/:run_id/events", handler.GetIngestRunEvents)
	}

	return r
}
