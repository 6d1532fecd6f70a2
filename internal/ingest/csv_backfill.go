package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"weather-data-backend/internal/model"
)

// BackfillFromCSV loads GHCND-style daily summary exports from the
// configured directory, one file per station, named <station code>.csv with
// columns DATE,TMAX,TMIN,PRCP (temperatures and precipitation in tenths,
// matching the API). Runs once at startup when the directory exists; rows
// upsert by (station, date) so a re-run is a no-op.
func (s *Service) BackfillFromCSV(ctx context.Context) error {
	dir := s.cfg.Ingest.StationHistoricDir
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[%s] directory %s not present; skipping", JobCSVBackfill, dir)
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	tracker, err := startRun(ctx, s.store, JobCSVBackfill)
	if err != nil {
		return fmt.Errorf("failed to start %s run: %w", JobCSVBackfill, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, e.Name())
		}
	}

	var unitErrs []error
	for _, name := range files {
		if err := s.backfillCSVFile(ctx, dir, name); err != nil {
			unitErrs = append(unitErrs, err)
		}
	}
	tracker.finish(ctx, len(files), unitErrs, nil)
	return nil
}

func (s *Service) backfillCSVFile(ctx context.Context, dir, name string) error {
	stationID := model.CanonicalStationID(strings.TrimSuffix(name, filepath.Ext(name)))
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	rows, err := parseDailyCSV(f, stationID)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil
	}
	// Ensure the station row exists so the summary's foreign key holds
	// even when the station was never discovered via the API.
	if err := s.store.UpsertStation(ctx, model.Station{StationID: stationID, UpdatedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("failed to upsert station %s: %w", stationID, err)
	}
	if err := s.store.UpsertDailySummaries(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert summaries from %s: %w", name, err)
	}
	log.Printf("[%s] loaded %d row(s) for %s from %s", JobCSVBackfill, len(rows), stationID, name)
	return nil
}

func parseDailyCSV(r io.Reader, stationID string) ([]model.DailySummary, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	dateIdx, ok := col["DATE"]
	if !ok {
		return nil, fmt.Errorf("missing DATE column")
	}

	ingestedAt := time.Now().UTC()
	var rows []model.DailySummary
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		day := parseInstant(rec[dateIdx])
		if day == nil {
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[dateIdx])
		}
		row := model.DailySummary{
			StationID:  stationID,
			Date:       day.Truncate(24 * time.Hour),
			TmaxC:      csvTenths(rec, col, "TMAX"),
			TminC:      csvTenths(rec, col, "TMIN"),
			PrcpMm:     csvTenths(rec, col, "PRCP"),
			IngestedAt: ingestedAt,
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func csvTenths(rec []string, col map[string]int, name string) *float64 {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return nil
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v /= 10
	return &v
}
