package model

import "time"

// GridpointStationMapping associates a gridpoint with a nearby station.
// At most one mapping per gridpoint carries IsPrimary=true; the primary is
// the nearest station with sufficient historical coverage.
type GridpointStationMapping struct {
	GridID    string  `gorm:"size:64;not null;uniqueIndex:idx_grid_station,priority:1"`
	StationID string  `gorm:"size:64;not null;uniqueIndex:idx_grid_station,priority:2"`
	DistanceM float64 `gorm:"not null"`
	IsPrimary bool    `gorm:"not null;index"`
	UpdatedAt time.Time
}
