package model

import "time"

// DailySummary is one immutable historical observation row per station and
// calendar date.
type DailySummary struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	StationID  string    `gorm:"size:64;not null;uniqueIndex:idx_daily_station_date,priority:1"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_station_date,priority:2"`
	TmaxC      *float64
	TminC      *float64
	PrcpMm     *float64
	RawJSON    string    `gorm:"type:text"`
	IngestedAt time.Time `gorm:"not null"`
}
