package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"

	"weather-data-backend/config"
)

// ServiceNWS is the health-tracker service name for the forecast/alert
// provider.
const ServiceNWS = "NWS"

// Recorder receives exactly one outcome per upstream HTTP call.
type Recorder interface {
	Record(service string, success bool)
}

// cacheEntry pairs a response body with its expiry instant. The expiry is
// checked against the injected clock so tests can advance time; the go-cache
// per-item TTL only acts as a real-time eviction backstop.
type cacheEntry struct {
	expiresAt time.Time
	body      []byte
}

// Client issues requests to the forecast/alert provider (api.weather.gov)
// with response-class TTL caching. Safe for concurrent use.
type Client struct {
	cfg    *config.UpstreamConfig
	http   *http.Client
	cache  *cache.Cache
	health Recorder
	clock  clockwork.Clock
}

// NewClient creates an upstream client. The health recorder must not be nil;
// pass clockwork.NewRealClock() outside of tests.
func NewClient(cfg *config.UpstreamConfig, health Recorder, clock clockwork.Clock) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   20 * time.Second,
		},
		cache:  cache.New(cache.NoExpiration, 10*time.Minute),
		health: health,
		clock:  clock,
	}
}

// GetJSON performs a GET against the given URL, caching responses according
// to the URL's TTL class. A cache hit returns a copy of the stored body.
// On failure any previous cache entry is left untouched.
func (c *Client) GetJSON(ctx context.Context, url string) (json.RawMessage, error) {
	ttl := c.ttlForURL(url)
	if ttl > 0 {
		if v, found := c.cache.Get(url); found {
			entry := v.(cacheEntry)
			if c.clock.Now().Before(entry.expiresAt) {
				return append(json.RawMessage(nil), entry.body...), nil
			}
		}
	}

	body, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, &ParseError{URL: url, Body: string(body), Err: fmt.Errorf("invalid JSON")}
	}

	if ttl > 0 {
		c.cache.Set(url, cacheEntry{expiresAt: c.clock.Now().Add(ttl), body: body}, ttl)
	}
	return body, nil
}

// do executes the request and reports the outcome to the health tracker
// exactly once before returning.
func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.health.Record(ServiceNWS, false)
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.health.Record(ServiceNWS, false)
		return nil, &TransportError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.health.Record(ServiceNWS, false)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: url, Body: string(body)}
	}

	c.health.Record(ServiceNWS, true)
	return body, nil
}

// Points loads NWS point metadata for a latitude/longitude pair.
func (c *Client) Points(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/points/%.4f,%.4f", c.cfg.BaseURL, lat, lon))
}

// ForecastHourly loads hourly forecast JSON from a provided NWS URL.
func (c *Client) ForecastHourly(ctx context.Context, forecastHourlyURL string) (json.RawMessage, error) {
	return c.GetJSON(ctx, forecastHourlyURL)
}

// ActiveAlertsForPoint fetches active alerts covering a point.
func (c *Client) ActiveAlertsForPoint(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.cfg.BaseURL, lat, lon))
}

// ttlForURL chooses a cache TTL by URL shape, not response content. Unmatched
// URLs are never cached.
func (c *Client) ttlForURL(url string) time.Duration {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "/alerts/active"):
		return c.cfg.AlertTTL
	case strings.Contains(u, "/forecast"):
		return c.cfg.ForecastTTL
	case strings.Contains(u, "/points/"):
		return c.cfg.PointsTTL
	default:
		return 0
	}
}
