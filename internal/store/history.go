package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"weather-data-backend/internal/model"
)

func (s *gormStore) UpsertStation(ctx context.Context, st model.Station) error {
	st.StationID = model.CanonicalStationID(st.StationID)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "station_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "lat", "lon", "elevation_m", "metadata", "updated_at",
		}),
	}).Create(&st).Error
}

func (s *gormStore) StationsWithLocation(ctx context.Context) ([]model.Station, error) {
	var out []model.Station
	err := s.db.WithContext(ctx).
		Where("lat IS NOT NULL AND lon IS NOT NULL").
		Order("station_id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) UpsertDailySummaries(ctx context.Context, rows []model.DailySummary) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].StationID = model.CanonicalStationID(rows[i].StationID)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "station_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tmax_c", "tmin_c", "prcp_mm", "raw_json", "ingested_at",
		}),
	}).Create(&rows).Error
}

func (s *gormStore) DailyHistory(ctx context.Context, stationID string, from, to time.Time) ([]model.DailySummary, error) {
	var out []model.DailySummary
	err := s.db.WithContext(ctx).
		Where("station_id = ? AND date >= ? AND date <= ?", model.CanonicalStationID(stationID), from, to).
		Order("date").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MaxDailyDate returns the most recent stored date for a station, or nil
// when no history exists yet.
func (s *gormStore) MaxDailyDate(ctx context.Context, stationID string) (*time.Time, error) {
	var row model.DailySummary
	err := s.db.WithContext(ctx).
		Where("station_id = ?", model.CanonicalStationID(stationID)).
		Order("date DESC").
		Limit(1).
		Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &row.Date, nil
}

func (s *gormStore) CountDailyInRange(ctx context.Context, stationID string, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.DailySummary{}).
		Where("station_id = ? AND date >= ? AND date <= ?", model.CanonicalStationID(stationID), from, to).
		Count(&n).Error
	return n, err
}

// RefreshGridAggregates recomputes the materialized trailing-window rollup
// for every gridpoint that has a primary station mapping.
func (s *gormStore) RefreshGridAggregates(ctx context.Context, asOf time.Time, windowDays int) error {
	var primaries []model.GridpointStationMapping
	err := s.db.WithContext(ctx).
		Where("is_primary = ?", true).
		Find(&primaries).Error
	if err != nil {
		return fmt.Errorf("failed to list primary mappings: %w", err)
	}

	from := asOf.AddDate(0, 0, -(windowDays - 1))
	for _, m := range primaries {
		days, err := s.DailyHistory(ctx, m.StationID, from, asOf)
		if err != nil {
			return fmt.Errorf("failed to load history for %s: %w", m.StationID, err)
		}

		agg := model.GridAggregate{
			GridID:     m.GridID,
			AsOfDate:   asOf,
			WindowDays: windowDays,
			StationID:  m.StationID,
			ComputedAt: time.Now().UTC(),
		}

		var tmaxSum, tminSum, prcpSum float64
		var tmaxN, tminN int
		for _, d := range days {
			if d.TmaxC != nil {
				tmaxSum += *d.TmaxC
				tmaxN++
			}
			if d.TminC != nil {
				tminSum += *d.TminC
				tminN++
			}
			if d.PrcpMm != nil {
				prcpSum += *d.PrcpMm
			}
		}
		agg.DaysWithData = len(days)
		if tmaxN > 0 {
			v := tmaxSum / float64(tmaxN)
			agg.AvgTmaxC = &v
		}
		if tminN > 0 {
			v := tminSum / float64(tminN)
			agg.AvgTminC = &v
		}
		if len(days) > 0 {
			agg.TotalPrcpMm = &prcpSum
		}

		err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "grid_id"}, {Name: "as_of_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"window_days", "station_id", "avg_tmax_c", "avg_tmin_c",
				"total_prcp_mm", "days_with_data", "computed_at",
			}),
		}).Create(&agg).Error
		if err != nil {
			return fmt.Errorf("failed to upsert aggregate for %s: %w", m.GridID, err)
		}
	}
	return nil
}

func (s *gormStore) GetGridAggregate(ctx context.Context, gridID string, asOf time.Time) (*model.GridAggregate, error) {
	var agg model.GridAggregate
	err := s.db.WithContext(ctx).
		Where("grid_id = ? AND as_of_date <= ?", gridID, asOf).
		Order("as_of_date DESC").
		Limit(1).
		Take(&agg).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &agg, nil
}
