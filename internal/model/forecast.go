package model

import "time"

// HourlyForecast is one forecast value set for a gridpoint over
// [StartTime, EndTime). IssuedAt identifies the forecast issuance that
// produced it; several issuances may coexist for the same slot. The
// "current" entry for a slot is derived at read time as the row with the
// greatest coalesce(issued_at, ingested_at).
type HourlyForecast struct {
	ID               int64      `gorm:"primaryKey;autoIncrement"`
	GridID           string     `gorm:"size:64;not null;uniqueIndex:idx_forecast_issuance,priority:1"`
	StartTime        time.Time  `gorm:"not null;index;uniqueIndex:idx_forecast_issuance,priority:2"`
	EndTime          time.Time  `gorm:"not null"`
	IssuedAt         *time.Time `gorm:"uniqueIndex:idx_forecast_issuance,priority:3"`
	TemperatureC     *float64
	WindSpeedMps     *float64
	WindGustMps      *float64
	WindDirDeg       *float64
	PrecipProb       *float64 `gorm:"check:precip_prob IS NULL OR (precip_prob >= 0 AND precip_prob <= 1)"`
	RelativeHumidity *float64
	ShortForecast    string    `gorm:"size:256"`
	RawJSON          string    `gorm:"type:text"`
	IngestedAt       time.Time `gorm:"not null"`
}
