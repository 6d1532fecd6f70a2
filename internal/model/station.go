package model

import (
	"strings"
	"time"
)

const ghcndPrefix = "GHCND:"

// Station is a historical observation point with a fixed location.
type Station struct {
	StationID  string `gorm:"primaryKey;size:64"`
	Name       string `gorm:"size:256"`
	Lat        *float64
	Lon        *float64
	ElevationM *float64
	Metadata   string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Summaries []DailySummary `gorm:"foreignKey:StationID;constraint:OnDelete:CASCADE"`
}

// CanonicalStationID returns the prefixed GHCND form of a station code.
// Upstream sources disagree on whether the dataset prefix is present
// ("GHCND:USW00024233" vs "USW00024233"); every write and lookup goes
// through the prefixed form.
func CanonicalStationID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(s), ghcndPrefix) {
		return ghcndPrefix + strings.ToUpper(s[len(ghcndPrefix):])
	}
	return ghcndPrefix + strings.ToUpper(s)
}
