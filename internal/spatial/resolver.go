package spatial

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"weather-data-backend/internal/model"
	"weather-data-backend/internal/store"
)

const (
	earthRadiusM = 6371000.0

	// tieToleranceM treats stations within this distance of the nearest
	// candidate as equidistant; the lexicographically smallest station
	// ID wins among them.
	tieToleranceM = 1.0

	// coverageWindowDays is how far back a station must have at least one
	// daily summary to qualify as a primary.
	coverageWindowDays = 30
)

// MappingUnresolvedError reports that no candidate station within the search
// radius had recent historical coverage. It is recorded, not fatal: the
// gridpoint simply keeps no primary until data improves.
type MappingUnresolvedError struct {
	GridID     string
	RadiusKm   float64
	Candidates int
}

func (e *MappingUnresolvedError) Error() string {
	return fmt.Sprintf("no primary station resolved for gridpoint %s: %d candidate(s) within %.1f km, none with recent coverage",
		e.GridID, e.Candidates, e.RadiusKm)
}

// Haversine returns the great-circle distance in meters between two
// lat/lon pairs in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Resolver ranks known stations by distance from a gridpoint and persists
// the nearest ones as its mappings, designating a single primary.
type Resolver struct {
	store    store.Store
	radiusKm float64
	mapKeep  int
}

func NewResolver(st store.Store, radiusKm float64, mapKeep int) *Resolver {
	if mapKeep <= 0 {
		mapKeep = 5
	}
	return &Resolver{store: st, radiusKm: radiusKm, mapKeep: mapKeep}
}

type candidate struct {
	stationID string
	distanceM float64
}

// ResolvePrimary finds the stations nearest to the gridpoint, checks their
// historical coverage as of asOfDate, and replaces the gridpoint's mappings
// in one transaction so at most one primary is ever visible. The returned
// mapping is the new primary. A *MappingUnresolvedError means no candidate
// qualified; the gridpoint's existing mappings are left untouched in that
// case.
func (r *Resolver) ResolvePrimary(ctx context.Context, gp model.Gridpoint, asOfDate time.Time) (*model.GridpointStationMapping, error) {
	stations, err := r.store.StationsWithLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stations: %w", err)
	}

	radiusM := r.radiusKm * 1000
	var cands []candidate
	for _, st := range stations {
		if st.Lat == nil || st.Lon == nil {
			continue
		}
		d := Haversine(gp.Lat, gp.Lon, *st.Lat, *st.Lon)
		if d <= radiusM {
			cands = append(cands, candidate{stationID: st.StationID, distanceM: d})
		}
	}
	if len(cands) == 0 {
		return nil, &MappingUnresolvedError{GridID: gp.GridID, RadiusKm: r.radiusKm}
	}

	// Nearest first. Stations within the tie tolerance of the nearest
	// candidate are treated as equidistant and ordered by ID, so the
	// result is deterministic across runs.
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].distanceM != cands[j].distanceM {
			return cands[i].distanceM < cands[j].distanceM
		}
		return cands[i].stationID < cands[j].stationID
	})
	window := 1
	for window < len(cands) && cands[window].distanceM-cands[0].distanceM <= tieToleranceM {
		window++
	}
	sort.Slice(cands[:window], func(i, j int) bool {
		return cands[i].stationID < cands[j].stationID
	})
	if len(cands) > r.mapKeep {
		cands = cands[:r.mapKeep]
	}

	primaryIdx := -1
	from := asOfDate.AddDate(0, 0, -coverageWindowDays)
	for i, c := range cands {
		n, err := r.store.CountDailyInRange(ctx, c.stationID, from, asOfDate)
		if err != nil {
			return nil, fmt.Errorf("coverage check for station %s failed: %w", c.stationID, err)
		}
		if n > 0 {
			primaryIdx = i
			break
		}
	}
	if primaryIdx < 0 {
		return nil, &MappingUnresolvedError{GridID: gp.GridID, RadiusKm: r.radiusKm, Candidates: len(cands)}
	}

	now := time.Now().UTC()
	mappings := make([]model.GridpointStationMapping, 0, len(cands))
	for i, c := range cands {
		mappings = append(mappings, model.GridpointStationMapping{
			GridID:    gp.GridID,
			StationID: c.stationID,
			DistanceM: c.distanceM,
			IsPrimary: i == primaryIdx,
			UpdatedAt: now,
		})
	}
	if err := r.store.ReplaceMappings(ctx, gp.GridID, mappings); err != nil {
		return nil, fmt.Errorf("failed to persist mappings for gridpoint %s: %w", gp.GridID, err)
	}
	return &mappings[primaryIdx], nil
}
