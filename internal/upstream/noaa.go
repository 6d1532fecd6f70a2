package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"weather-data-backend/config"
)

// ServiceNOAA is the health-tracker service name for the historical-data
// provider.
const ServiceNOAA = "NOAA"

const noaaMaxAttempts = 3

// NOAAClient issues token-authenticated requests to the NOAA Climate Data
// Online API. A token-bucket rate limiter and a circuit breaker protect the
// upstream from bursts and repeated failures.
type NOAAClient struct {
	cfg     *config.NOAAConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	health  Recorder
}

// NewNOAAClient creates a NOAA CDO client from config.
func NewNOAAClient(cfg *config.NOAAConfig, health Recorder) *NOAAClient {
	burst := int(math.Max(1, cfg.QPS*10))
	return &NOAAClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "noaa",
			Interval: time.Minute,
			Timeout:  5 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		health: health,
	}
}

// StationsNear searches GHCND stations inside a bounding box around a point,
// sorted by data coverage.
func (c *NOAAClient) StationsNear(ctx context.Context, lat, lon, radiusKm float64, limit int) (json.RawMessage, error) {
	// ~1 deg lat = 111 km; lon scaled by cos(lat)
	dLat := radiusKm / 111.0
	dLon := radiusKm / (111.0 * math.Max(0.1, math.Cos(lat*math.Pi/180.0)))

	extent := fmt.Sprintf("%f,%f,%f,%f", lat-dLat, lon-dLon, lat+dLat, lon+dLon)

	q := url.Values{}
	q.Set("datasetid", "GHCND")
	q.Set("extent", extent)
	q.Set("sortfield", "datacoverage")
	q.Set("sortorder", "desc")
	q.Set("limit", strconv.Itoa(limit))

	return c.getJSON(ctx, c.cfg.BaseURL+"/stations?"+q.Encode())
}

// DailyGHCND fetches daily TMAX/TMIN/PRCP rows for a station and date range,
// in metric units. NOAA returns temperatures and precipitation in tenths.
func (c *NOAAClient) DailyGHCND(ctx context.Context, stationID, startDate, endDate string, limit, offset int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("datasetid", "GHCND")
	q.Set("stationid", stationID)
	q.Set("startdate", startDate)
	q.Set("enddate", endDate)
	q.Set("units", "metric")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	// url.Values cannot express the repeated datatypeid parameter
	extra := "&datatypeid=TMAX&datatypeid=TMIN&datatypeid=PRCP"

	return c.getJSON(ctx, c.cfg.BaseURL+"/data?"+q.Encode()+extra)
}

// getJSON executes a GET with rate limiting, circuit breaking, and retries
// with exponential backoff on retryable failures.
func (c *NOAAClient) getJSON(ctx context.Context, reqURL string) (json.RawMessage, error) {
	backoff := time.Second
	var lastErr error

	for attempt := 1; attempt <= noaaMaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doOnce(ctx, reqURL)
		})
		if err == nil {
			body := result.([]byte)
			if !json.Valid(body) {
				return nil, &ParseError{URL: reqURL, Body: string(body), Err: fmt.Errorf("invalid JSON")}
			}
			return json.RawMessage(body), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("noaa circuit breaker open: %w", err)
		}

		lastErr = err
		if !retryable(err) || attempt == noaaMaxAttempts {
			return nil, err
		}

		wait := backoff
		var ue *UpstreamError
		if errors.As(err, &ue) {
			if ra := ue.retryAfter; ra > 0 {
				wait = ra
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, lastErr
}

// doOnce performs a single HTTP call, reporting its outcome to the health
// tracker exactly once.
func (c *NOAAClient) doOnce(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("token", c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.health.Record(ServiceNOAA, false)
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.health.Record(ServiceNOAA, false)
		return nil, &TransportError{URL: reqURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.health.Record(ServiceNOAA, false)
		ue := &UpstreamError{StatusCode: resp.StatusCode, URL: reqURL, Body: string(body)}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil && secs > 0 {
				ue.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, ue
	}

	c.health.Record(ServiceNOAA, true)
	return body, nil
}

// retryable reports whether an error is worth another attempt.
func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return false
}
