package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"weather-data-backend/internal/model"
	"weather-data-backend/internal/upstream"
)

// RefreshGridpoints resolves every tracked point to its forecast gridpoint
// via /points and upserts the result. Points sharing a grid cell collapse
// onto one gridpoint row.
func (s *Service) RefreshGridpoints(ctx context.Context) error {
	tracker, err := startRun(ctx, s.store, JobGridpointRefresh)
	if err != nil {
		return fmt.Errorf("failed to start %s run: %w", JobGridpointRefresh, err)
	}

	points, err := s.store.ListTrackedPoints(ctx)
	if err != nil {
		tracker.finish(ctx, 0, nil, err)
		return err
	}

	unitErrs := runUnits(ctx, s.cfg.Ingest.Workers, len(points), func(ctx context.Context, i int) error {
		return s.refreshGridpointFor(ctx, tracker, points[i])
	})
	tracker.finish(ctx, len(points), unitErrs, nil)
	return nil
}

func (s *Service) refreshGridpointFor(ctx context.Context, tracker *runTracker, tp model.TrackedPoint) error {
	endpoint := fmt.Sprintf("/points/%.4f,%.4f", tp.Lat, tp.Lon)
	started := time.Now()
	body, err := s.nws.Points(ctx, tp.Lat, tp.Lon)
	tracker.event(ctx, upstream.ServiceNWS, endpoint, started, err)
	if err != nil {
		return fmt.Errorf("points lookup for %q failed: %w", tp.Name, err)
	}

	var resp pointsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("points response for %q: %w", tp.Name, err)
	}
	p := resp.Properties
	if p.GridID == "" {
		return fmt.Errorf("points response for %q carried no grid id", tp.Name)
	}

	gp := model.Gridpoint{
		GridID:              fmt.Sprintf("%s:%d,%d", p.GridID, p.GridX, p.GridY),
		Office:              p.GridID,
		GridX:               p.GridX,
		GridY:               p.GridY,
		Lat:                 tp.Lat,
		Lon:                 tp.Lon,
		ForecastHourlyURL:   p.ForecastHourly,
		ForecastGridDataURL: p.ForecastGridData,
		LastRefreshedAt:     time.Now().UTC(),
	}
	if err := s.store.UpsertGridpoint(ctx, gp); err != nil {
		return fmt.Errorf("failed to upsert gridpoint %s: %w", gp.GridID, err)
	}
	return nil
}

// IngestHourlyForecasts fetches the hourly forecast for every known
// gridpoint and upserts the normalized periods. Rows are keyed by
// (grid_id, start_time, issued_at) so re-ingesting an unchanged issuance is
// a no-op.
func (s *Service) IngestHourlyForecasts(ctx context.Context) error {
	tracker, err := startRun(ctx, s.store, JobHourlyForecast)
	if err != nil {
		return fmt.Errorf("failed to start %s run: %w", JobHourlyForecast, err)
	}

	gps, err := s.store.ListGridpointsForHourly(ctx)
	if err != nil {
		tracker.finish(ctx, 0, nil, err)
		return err
	}

	unitErrs := runUnits(ctx, s.cfg.Ingest.Workers, len(gps), func(ctx context.Context, i int) error {
		return s.ingestHourlyFor(ctx, tracker, gps[i])
	})
	tracker.finish(ctx, len(gps), unitErrs, nil)
	return nil
}

func (s *Service) ingestHourlyFor(ctx context.Context, tracker *runTracker, gp model.Gridpoint) error {
	started := time.Now()
	body, err := s.nws.ForecastHourly(ctx, gp.ForecastHourlyURL)
	tracker.event(ctx, upstream.ServiceNWS, gp.ForecastHourlyURL, started, err)
	if err != nil {
		return fmt.Errorf("hourly forecast for %s failed: %w", gp.GridID, err)
	}

	rows, err := normalizeHourly(gp.GridID, body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Printf("[%s] gridpoint %s returned no forecast periods", JobHourlyForecast, gp.GridID)
		return nil
	}
	if err := s.store.UpsertHourlyForecasts(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert forecasts for %s: %w", gp.GridID, err)
	}
	return nil
}

// normalizeHourly converts one forecastHourly document into storage rows:
// °F to °C, wind speed text to m/s, compass direction to degrees, percent
// precipitation to a [0,1] probability.
func normalizeHourly(gridID string, body json.RawMessage) ([]model.HourlyForecast, error) {
	var resp hourlyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("hourly response for %s: %w", gridID, err)
	}
	issuedAt := parseInstant(resp.Properties.UpdateTime)
	ingestedAt := time.Now().UTC()

	rows := make([]model.HourlyForecast, 0, len(resp.Properties.Periods))
	for _, p := range resp.Properties.Periods {
		start := parseInstant(p.StartTime)
		end := parseInstant(p.EndTime)
		if start == nil || end == nil {
			log.Printf("[%s] gridpoint %s: skipping period with bad times %q/%q", JobHourlyForecast, gridID, p.StartTime, p.EndTime)
			continue
		}
		if issuedAt == nil {
			// Missing or unparseable updateTime: key the issuance off
			// the first period start. A NULL issued_at would never hit
			// the upsert's conflict target, and re-ingesting the same
			// document would duplicate every row.
			issuedAt = start
		}
		row := model.HourlyForecast{
			GridID:        gridID,
			StartTime:     *start,
			EndTime:       *end,
			IssuedAt:      issuedAt,
			WindSpeedMps:  parseWindSpeedMps(p.WindSpeed),
			WindGustMps:   parseWindSpeedMps(p.WindGust),
			WindDirDeg:    cardinalToDegrees(p.WindDirection),
			PrecipProb:    precipProbability(p.ProbabilityOfPrecipitation.Value),
			ShortForecast: p.ShortForecast,
			IngestedAt:    ingestedAt,
		}
		if p.Temperature != nil {
			c := toCelsius(*p.Temperature, p.TemperatureUnit)
			row.TemperatureC = &c
		}
		if p.RelativeHumidity.Value != nil {
			rh := *p.RelativeHumidity.Value
			row.RelativeHumidity = &rh
		}
		if raw, err := json.Marshal(p); err == nil {
			row.RawJSON = string(raw)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// IngestAlerts fetches active alerts around every tracked point and upserts
// them by alert id. Expired alerts are kept; activity is derived at read
// time.
func (s *Service) IngestAlerts(ctx context.Context) error {
	tracker, err := startRun(ctx, s.store, JobAlerts)
	if err != nil {
		return fmt.Errorf("failed to start %s run: %w", JobAlerts, err)
	}

	points, err := s.store.ListTrackedPoints(ctx)
	if err != nil {
		tracker.finish(ctx, 0, nil, err)
		return err
	}

	unitErrs := runUnits(ctx, s.cfg.Ingest.Workers, len(points), func(ctx context.Context, i int) error {
		return s.ingestAlertsFor(ctx, tracker, points[i])
	})
	tracker.finish(ctx, len(points), unitErrs, nil)
	return nil
}

func (s *Service) ingestAlertsFor(ctx context.Context, tracker *runTracker, tp model.TrackedPoint) error {
	endpoint := fmt.Sprintf("/alerts/active?point=%.4f,%.4f", tp.Lat, tp.Lon)
	started := time.Now()
	body, err := s.nws.ActiveAlertsForPoint(ctx, tp.Lat, tp.Lon)
	tracker.event(ctx, upstream.ServiceNWS, endpoint, started, err)
	if err != nil {
		return fmt.Errorf("alerts for %q failed: %w", tp.Name, err)
	}

	var resp alertsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("alerts response for %q: %w", tp.Name, err)
	}
	ingestedAt := time.Now().UTC()
	rows := make([]model.Alert, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := f.Properties
		if p.ID == "" {
			continue
		}
		row := model.Alert{
			AlertID:     p.ID,
			Event:       p.Event,
			Severity:    p.Severity,
			Certainty:   p.Certainty,
			Urgency:     p.Urgency,
			Headline:    p.Headline,
			Description: p.Description,
			Instruction: p.Instruction,
			Effective:   parseInstant(p.Effective),
			Onset:       parseInstant(p.Onset),
			Expires:     parseInstant(p.Expires),
			Ends:        parseInstant(p.Ends),
			Status:      p.Status,
			MessageType: p.MessageType,
			AreaDesc:    p.AreaDesc,
			IngestedAt:  ingestedAt,
		}
		if f.Geometry != nil {
			if g, err := json.Marshal(f.Geometry); err == nil {
				row.GeometryJSON = string(g)
			}
		}
		if raw, err := json.Marshal(f); err == nil {
			row.RawJSON = string(raw)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.store.UpsertAlerts(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert alerts for %q: %w", tp.Name, err)
	}
	return nil
}
