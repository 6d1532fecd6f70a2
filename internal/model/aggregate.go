package model

import "time"

// GridAggregate is a materialized rollup of a gridpoint's primary-station
// daily history over a trailing window, recomputed by an explicit refresh
// job after daily ingestion.
type GridAggregate struct {
	GridID       string    `gorm:"size:64;not null;uniqueIndex:idx_agg_grid_date,priority:1"`
	AsOfDate     time.Time `gorm:"type:date;not null;uniqueIndex:idx_agg_grid_date,priority:2"`
	WindowDays   int       `gorm:"not null"`
	StationID    string    `gorm:"size:64"`
	AvgTmaxC     *float64
	AvgTminC     *float64
	TotalPrcpMm  *float64
	DaysWithData int `gorm:"not null"`
	ComputedAt   time.Time
}
