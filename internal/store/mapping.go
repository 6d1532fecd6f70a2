package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weather-data-backend/internal/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ReplaceMappings clears the gridpoint's previous primary flag and upserts
// the new mapping set in one transaction, so a concurrent reader never
// observes zero or multiple primaries mid-update.
func (s *gormStore) ReplaceMappings(ctx context.Context, gridID string, mappings []model.GridpointStationMapping) error {
	for i := range mappings {
		mappings[i].StationID = model.CanonicalStationID(mappings[i].StationID)
		mappings[i].GridID = gridID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.GridpointStationMapping{}).
			Where("grid_id = ?", gridID).
			Update("is_primary", false).Error
		if err != nil {
			return fmt.Errorf("failed to clear primary for %s: %w", gridID, err)
		}
		if len(mappings) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "grid_id"}, {Name: "station_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"distance_m", "is_primary", "updated_at"}),
		}).Create(&mappings).Error
	})
}

func (s *gormStore) MappingsForGridpoint(ctx context.Context, gridID string) ([]model.GridpointStationMapping, error) {
	var out []model.GridpointStationMapping
	err := s.db.WithContext(ctx).
		Where("grid_id = ?", gridID).
		Order("distance_m").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) PrimaryStationIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).
		Model(&model.GridpointStationMapping{}).
		Where("is_primary = ?", true).
		Distinct().
		Order("station_id").
		Pluck("station_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AlternateStation returns the next-nearest mapped station for a gridpoint,
// excluding the given one. Empty string when there is no alternate.
func (s *gormStore) AlternateStation(ctx context.Context, gridID, excludeStationID string) (string, error) {
	var m model.GridpointStationMapping
	err := s.db.WithContext(ctx).
		Where("grid_id = ? AND station_id <> ?", gridID, model.CanonicalStationID(excludeStationID)).
		Order("distance_m").
		Limit(1).
		Take(&m).Error
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return m.StationID, nil
}

func (s *gormStore) GridIDsForStation(ctx context.Context, stationID string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).
		Model(&model.GridpointStationMapping{}).
		Where("station_id = ?", model.CanonicalStationID(stationID)).
		Pluck("grid_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
