package model

import "time"

// Gridpoint is one NWS forecast grid cell, keyed by issuing office plus grid
// coordinates (e.g. "SEW:124,68").
type Gridpoint struct {
	GridID              string `gorm:"primaryKey;size:64"`
	Office              string `gorm:"size:8;not null"`
	GridX               int    `gorm:"not null"`
	GridY               int    `gorm:"not null"`
	Lat                 float64
	Lon                 float64
	ForecastHourlyURL   string `gorm:"size:512"`
	ForecastGridDataURL string `gorm:"size:512"`
	LastRefreshedAt     time.Time
	CreatedAt           time.Time

	// Associations
	Forecasts []HourlyForecast          `gorm:"foreignKey:GridID;constraint:OnDelete:CASCADE"`
	Mappings  []GridpointStationMapping `gorm:"foreignKey:GridID;constraint:OnDelete:CASCADE"`
}
