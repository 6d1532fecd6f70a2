package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weather-data-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Tracked points
	ListTrackedPoints(ctx context.Context) ([]model.TrackedPoint, error)
	UpsertTrackedPoint(ctx context.Context, name string, lat, lon float64) (model.TrackedPoint, error)
	DeleteTrackedPoint(ctx context.Context, id int64) error

	// Gridpoints and forecasts
	UpsertGridpoint(ctx context.Context, gp model.Gridpoint) error
	GetGridpoint(ctx context.Context, gridID string) (*model.Gridpoint, error)
	ListGridpoints(ctx context.Context) ([]model.Gridpoint, error)
	ListGridpointsForHourly(ctx context.Context) ([]model.Gridpoint, error)
	UpsertHourlyForecasts(ctx context.Context, rows []model.HourlyForecast) error
	LatestHourly(ctx context.Context, gridID string, from, to time.Time) ([]model.HourlyForecast, error)

	// Alerts
	UpsertAlerts(ctx context.Context, rows []model.Alert) error
	ActiveAlerts(ctx context.Context, now time.Time) ([]model.Alert, error)

	// Stations, daily history, aggregates
	UpsertStation(ctx context.Context, st model.Station) error
	StationsWithLocation(ctx context.Context) ([]model.Station, error)
	UpsertDailySummaries(ctx context.Context, rows []model.DailySummary) error
	DailyHistory(ctx context.Context, stationID string, from, to time.Time) ([]model.DailySummary, error)
	MaxDailyDate(ctx context.Context, stationID string) (*time.Time, error)
	CountDailyInRange(ctx context.Context, stationID string, from, to time.Time) (int64, error)
	RefreshGridAggregates(ctx context.Context, asOf time.Time, windowDays int) error
	GetGridAggregate(ctx context.Context, gridID string, asOf time.Time) (*model.GridAggregate, error)

	// Gridpoint-station mappings
	ReplaceMappings(ctx context.Context, gridID string, mappings []model.GridpointStationMapping) error
	MappingsForGridpoint(ctx context.Context, gridID string) ([]model.GridpointStationMapping, error)
	PrimaryStationIDs(ctx context.Context) ([]string, error)
	AlternateStation(ctx context.Context, gridID, excludeStationID string) (string, error)
	GridIDsForStation(ctx context.Context, stationID string) ([]string, error)

	// Ingest run audit trail
	StartRun(ctx context.Context, jobName string, now time.Time) (uuid.UUID, error)
	FinishRun(ctx context.Context, runID uuid.UUID, status string, notes string, now time.Time) error
	LogEvent(ctx context.Context, ev model.IngestEvent) error
	ReconcileAbandonedRuns(ctx context.Context, olderThan time.Time) (int64, error)
	ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error)
	ListEvents(ctx context.Context, runID uuid.UUID) ([]model.IngestEvent, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying gorm handle for read-only API queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) ListTrackedPoints(ctx context.Context) ([]model.TrackedPoint, error) {
	var out []model.TrackedPoint
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) UpsertTrackedPoint(ctx context.Context, name string, lat, lon float64) (model.TrackedPoint, error) {
	tp := model.TrackedPoint{Name: name, Lat: lat, Lon: lon}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lat"}, {Name: "lon"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&tp).Error
	if err != nil {
		return model.TrackedPoint{}, fmt.Errorf("upsert tracked point failed: %w", err)
	}
	return tp, nil
}

func (s *gormStore) DeleteTrackedPoint(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&model.TrackedPoint{}, id).Error
}

// UpsertGridpoint writes a gridpoint, refreshing last_refreshed_at on
// conflict.
func (s *gormStore) UpsertGridpoint(ctx context.Context, gp model.Gridpoint) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "grid_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"office", "grid_x", "grid_y", "lat", "lon",
			"forecast_hourly_url", "forecast_grid_data_url", "last_refreshed_at",
		}),
	}).Create(&gp).Error
}

func (s *gormStore) GetGridpoint(ctx context.Context, gridID string) (*model.Gridpoint, error) {
	var gp model.Gridpoint
	err := s.db.WithContext(ctx).First(&gp, "grid_id = ?", gridID).Error
	if err != nil {
		return nil, err
	}
	return &gp, nil
}

func (s *gormStore) ListGridpoints(ctx context.Context) ([]model.Gridpoint, error) {
	var out []model.Gridpoint
	if err := s.db.WithContext(ctx).Order("grid_id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) ListGridpointsForHourly(ctx context.Context) ([]model.Gridpoint, error) {
	var out []model.Gridpoint
	err := s.db.WithContext(ctx).
		Where("forecast_hourly_url <> ''").
		Order("grid_id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertHourlyForecasts batch-writes forecast rows, keyed by the issuance
// triple so re-running a job with identical upstream data overwrites rather
// than duplicates.
func (s *gormStore) UpsertHourlyForecasts(ctx context.Context, rows []model.HourlyForecast) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "grid_id"}, {Name: "start_time"}, {Name: "issued_at"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"end_time", "temperature_c", "wind_speed_mps", "wind_gust_mps", "wind_dir_deg",
			"precip_prob", "relative_humidity", "short_forecast", "raw_json", "ingested_at",
		}),
	}).Create(&rows).Error
}

// LatestHourly returns the current forecast per hour slot in [from, to):
// for each (grid_id, start_time) the row with the greatest
// coalesce(issued_at, ingested_at). Derived at read time, never stored.
func (s *gormStore) LatestHourly(ctx context.Context, gridID string, from, to time.Time) ([]model.HourlyForecast, error) {
	var out []model.HourlyForecast
	err := s.db.WithContext(ctx).Raw(`
		SELECT f.* FROM hourly_forecasts f
		JOIN (
			SELECT grid_id, start_time, MAX(COALESCE(issued_at, ingested_at)) AS current_issuance
			FROM hourly_forecasts
			WHERE grid_id = ? AND start_time >= ? AND start_time < ?
			GROUP BY grid_id, start_time
		) latest
		  ON latest.grid_id = f.grid_id
		 AND latest.start_time = f.start_time
		 AND COALESCE(f.issued_at, f.ingested_at) = latest.current_issuance
		ORDER BY f.start_time`, gridID, from, to).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) UpsertAlerts(ctx context.Context, rows []model.Alert) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "alert_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"event", "severity", "certainty", "urgency", "headline", "description",
			"instruction", "effective", "onset", "expires", "ends", "status",
			"message_type", "area_desc", "geometry_json", "raw_json", "ingested_at",
		}),
	}).Create(&rows).Error
}

// ActiveAlerts applies the read-time derivation: expires unset or in the
// future, effective unset or not in the future.
func (s *gormStore) ActiveAlerts(ctx context.Context, now time.Time) ([]model.Alert, error) {
	var out []model.Alert
	err := s.db.WithContext(ctx).
		Where("(expires IS NULL OR expires > ?)", now).
		Where("(effective IS NULL OR effective <= ?)", now).
		Order("effective DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
