package model

import "time"

// TrackedPoint is a coordinate pair the ingestion pipeline follows. Points
// come from config and from the API; duplicates collapse on (lat, lon).
type TrackedPoint struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	Name      string  `gorm:"size:128"`
	Lat       float64 `gorm:"not null;uniqueIndex:idx_tracked_lat_lon,priority:1"`
	Lon       float64 `gorm:"not null;uniqueIndex:idx_tracked_lat_lon,priority:2"`
	CreatedAt time.Time
}
