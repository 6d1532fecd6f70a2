package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"weather-data-backend/internal/model"
	"weather-data-backend/internal/spatial"
	"weather-data-backend/internal/upstream"
)

// noaaPageLimit is the CDO API's maximum page size.
const noaaPageLimit = 1000

// DiscoverStations searches for GHCND stations around every gridpoint,
// upserts them, and re-resolves each gridpoint's primary mapping. A
// gridpoint with no qualifying station keeps no primary; that is logged,
// not failed.
func (s *Service) DiscoverStations(ctx context.Context) error {
	if s.noaa == nil {
		log.Printf("[%s] historical-data integration disabled; skipping", JobStationDiscovery)
		return nil
	}
	tracker, err := startRun(ctx, s.store, JobStationDiscovery)
	if err != nil {
		return fmt.Errorf("failed to start %s run: %w", JobStationDiscovery, err)
	}

	gps, err := s.store.ListGridpoints(ctx)
	if err != nil {
		tracker.finish(ctx, 0, nil, err)
		return err
	}

	// Station discovery stays sequential: the CDO API rate limit is low
	// enough that parallel gridpoints just queue on the limiter.
	var unitErrs []error
	for _, gp := range gps {
		if err := s.discoverStationsFor(ctx, tracker, gp); err != nil {
			unitErrs = append(unitErrs, err)
		}
	}
	tracker.finish(ctx, len(gps), unitErrs, nil)
	return nil
}

func (s *Service) discoverStationsFor(ctx context.Context, tracker *runTracker, gp model.Gridpoint) error {
	endpoint := fmt.Sprintf("/stations?lat=%.4f&lon=%.4f", gp.Lat, gp.Lon)
	started := time.Now()
	body, err := s.noaa.StationsNear(ctx, gp.Lat, gp.Lon, s.cfg.NOAA.StationRadiusKm, s.cfg.NOAA.StationLimit)
	tracker.event(ctx, upstream.ServiceNOAA, endpoint, started, err)
	if err != nil {
		return fmt.Errorf("station search for %s failed: %w", gp.GridID, err)
	}

	var resp noaaStationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("station response for %s: %w", gp.GridID, err)
	}
	now := time.Now().UTC()
	for _, r := range resp.Results {
		if r.ID == "" {
			continue
		}
		st := model.Station{
			StationID:  model.CanonicalStationID(r.ID),
			Name:       r.Name,
			Lat:        r.Latitude,
			Lon:        r.Longitude,
			ElevationM: r.Elevation,
			UpdatedAt:  now,
		}
		if meta, err := json.Marshal(r); err == nil {
			st.Metadata = string(meta)
		}
		if err := s.store.UpsertStation(ctx, st); err != nil {
			return fmt.Errorf("failed to upsert station %s: %w", st.StationID, err)
		}
	}

	_, err = s.resolver.ResolvePrimary(ctx, gp, now)
	var unresolved *spatial.MappingUnresolvedError
	if errors.As(err, &unresolved) {
		log.Printf("[%s] %v", JobStationDiscovery, unresolved)
		return nil
	}
	return err
}

// IngestDailyHistory incrementally backfills GHCND daily summaries for every
// primary station, chunked to bound request sizes. When a primary station's
// fetch fails the next-nearest mapped station is tried so the gridpoint
// still gains data for the range.
func (s *Service) IngestDailyHistory(ctx context.Context) error {
	if s.noaa == nil {
		log.Printf("[%s] historical-data integration disabled; skipping", JobDailyHistory)
		return nil
	}
	tracker, err := startRun(ctx, s.store, JobDailyHistory)
	if err != nil {
		return fmt.Errorf("failed to start %s run: %w", JobDailyHistory, err)
	}

	stationIDs, err := s.store.PrimaryStationIDs(ctx)
	if err != nil {
		tracker.finish(ctx, 0, nil, err)
		return err
	}

	var unitErrs []error
	for _, stationID := range stationIDs {
		if err := s.backfillStation(ctx, tracker, stationID); err != nil {
			unitErrs = append(unitErrs, err)
		}
	}
	tracker.finish(ctx, len(stationIDs), unitErrs, nil)

	if err := s.RefreshAggregates(ctx); err != nil {
		log.Printf("[%s] aggregate refresh after history ingest failed: %v", JobDailyHistory, err)
	}
	return nil
}

func (s *Service) backfillStation(ctx context.Context, tracker *runTracker, stationID string) error {
	err := s.backfillStationRange(ctx, tracker, stationID)
	if err == nil {
		return nil
	}
	alt, altErr := s.alternateFor(ctx, stationID)
	if altErr != nil || alt == "" {
		return err
	}
	log.Printf("[%s] primary %s failed (%v); trying alternate %s", JobDailyHistory, stationID, err, alt)
	if altOut := s.backfillStationRange(ctx, tracker, alt); altOut != nil {
		return fmt.Errorf("primary %s and alternate %s both failed: %w", stationID, alt, altOut)
	}
	return nil
}

// alternateFor finds the next-nearest mapped station sharing a gridpoint
// with the given one.
func (s *Service) alternateFor(ctx context.Context, stationID string) (string, error) {
	gridIDs, err := s.store.GridIDsForStation(ctx, stationID)
	if err != nil || len(gridIDs) == 0 {
		return "", err
	}
	return s.store.AlternateStation(ctx, gridIDs[0], stationID)
}

func (s *Service) backfillStationRange(ctx context.Context, tracker *runTracker, stationID string) error {
	start, err := s.backfillStart(ctx, stationID)
	if err != nil {
		return err
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if !start.Before(today) {
		return nil
	}

	chunk := s.cfg.NOAA.HistoryChunkDays
	for from := start; from.Before(today); from = from.AddDate(0, 0, chunk) {
		to := from.AddDate(0, 0, chunk-1)
		if to.After(today) {
			to = today
		}
		if err := s.fetchDailyChunk(ctx, tracker, stationID, from, to); err != nil {
			return err
		}
	}
	return nil
}

// backfillStart returns the day after the newest stored summary, or the
// configured backfill start for a station with no history yet.
func (s *Service) backfillStart(ctx context.Context, stationID string) (time.Time, error) {
	maxDate, err := s.store.MaxDailyDate(ctx, stationID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find newest summary for %s: %w", stationID, err)
	}
	if maxDate != nil {
		return maxDate.AddDate(0, 0, 1), nil
	}
	start, err := time.Parse("2006-01-02", s.cfg.NOAA.BackfillStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid backfill start %q: %w", s.cfg.NOAA.BackfillStart, err)
	}
	return start, nil
}

func (s *Service) fetchDailyChunk(ctx context.Context, tracker *runTracker, stationID string, from, to time.Time) error {
	startStr := from.Format("2006-01-02")
	endStr := to.Format("2006-01-02")

	byDate := make(map[time.Time]*model.DailySummary)
	for offset := 1; ; {
		endpoint := fmt.Sprintf("/data?station=%s&start=%s&end=%s&offset=%d", stationID, startStr, endStr, offset)
		started := time.Now()
		body, err := s.noaa.DailyGHCND(ctx, stationID, startStr, endStr, noaaPageLimit, offset)
		tracker.event(ctx, upstream.ServiceNOAA, endpoint, started, err)
		if err != nil {
			return fmt.Errorf("daily history %s %s..%s failed: %w", stationID, startStr, endStr, err)
		}

		var resp noaaDataResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("daily history response for %s: %w", stationID, err)
		}
		mergeDailyResults(byDate, stationID, resp)

		offset += len(resp.Results)
		if len(resp.Results) == 0 || offset > resp.Metadata.ResultSet.Count {
			break
		}
	}
	if len(byDate) == 0 {
		return nil
	}

	rows := make([]model.DailySummary, 0, len(byDate))
	for _, row := range byDate {
		rows = append(rows, *row)
	}
	if err := s.store.UpsertDailySummaries(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert summaries for %s: %w", stationID, err)
	}
	return nil
}

// mergeDailyResults folds one page of per-datatype CDO rows into per-date
// summaries. GHCND reports temperatures in tenths of °C and precipitation
// in tenths of mm.
func mergeDailyResults(byDate map[time.Time]*model.DailySummary, stationID string, resp noaaDataResponse) {
	ingestedAt := time.Now().UTC()
	for _, r := range resp.Results {
		ts := parseInstant(r.Date)
		if ts == nil {
			continue
		}
		day := ts.Truncate(24 * time.Hour)
		row, ok := byDate[day]
		if !ok {
			row = &model.DailySummary{
				StationID:  model.CanonicalStationID(stationID),
				Date:       day,
				IngestedAt: ingestedAt,
			}
			byDate[day] = row
		}
		v := r.Value / 10
		switch r.DataType {
		case "TMAX":
			row.TmaxC = &v
		case "TMIN":
			row.TminC = &v
		case "PRCP":
			row.PrcpMm = &v
		}
	}
}

// RefreshAggregates recomputes the cached 30-day per-gridpoint rollups from
// stored daily history. It touches no upstream, so it runs without a run
// tracker.
func (s *Service) RefreshAggregates(ctx context.Context) error {
	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if err := s.store.RefreshGridAggregates(ctx, asOf, aggregateWindowDays); err != nil {
		return fmt.Errorf("failed to refresh grid aggregates: %w", err)
	}
	return nil
}
