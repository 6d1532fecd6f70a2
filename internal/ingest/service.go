package ingest

import (
	"weather-data-backend/config"
	"weather-data-backend/internal/spatial"
	"weather-data-backend/internal/store"
	"weather-data-backend/internal/upstream"
)

// Job names as recorded in the run audit trail.
const (
	JobGridpointRefresh = "gridpoint_refresh"
	JobHourlyForecast   = "hourly_forecast"
	JobAlerts           = "alerts"
	JobStationDiscovery = "station_discovery"
	JobDailyHistory     = "daily_history"
	JobAggregateRefresh = "aggregate_refresh"
	JobCSVBackfill      = "csv_backfill"
)

// aggregateWindowDays is the trailing window the cached per-gridpoint
// aggregates cover.
const aggregateWindowDays = 30

// Service runs the ingestion jobs against the upstream clients and the
// store.
type Service struct {
	cfg      *config.Config
	store    store.Store
	nws      *upstream.Client
	noaa     *upstream.NOAAClient
	resolver *spatial.Resolver
}

// NewService wires the ingestion pipeline. noaa may be nil when the
// historical-data integration is disabled.
func NewService(cfg *config.Config, st store.Store, nws *upstream.Client, noaa *upstream.NOAAClient, resolver *spatial.Resolver) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		nws:      nws,
		noaa:     noaa,
		resolver: resolver,
	}
}
