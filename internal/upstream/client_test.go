package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-data-backend/config"
)

type recorderStub struct {
	mu       sync.Mutex
	outcomes []bool
	services []string
}

func (r *recorderStub) Record(service string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = append(r.services, service)
	r.outcomes = append(r.outcomes, success)
}

func (r *recorderStub) results() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.outcomes...)
}

func testUpstreamConfig() *config.UpstreamConfig {
	return &config.UpstreamConfig{
		UserAgent:   "weatherd-test",
		AlertTTL:    60 * time.Second,
		ForecastTTL: 6 * time.Hour,
		PointsTTL:   24 * time.Hour,
	}
}

func TestGetJSONCachesWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"value":1}`))
	}))
	defer srv.Close()

	rec := &recorderStub{}
	c := NewClient(testUpstreamConfig(), rec, clockwork.NewFakeClock())

	url := srv.URL + "/forecast/hourly"
	first, err := c.GetJSON(context.Background(), url)
	require.NoError(t, err)
	second, err := c.GetJSON(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second read within TTL must be a cache hit")
	assert.Equal(t, string(first), string(second))

	// Mutating a returned body must not poison the cache.
	second[2] = 'X'
	third, err := c.GetJSON(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, `{"value":1}`, string(third))
	assert.Equal(t, 1, hits)
}

func TestGetJSONRefetchesAfterExpiry(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	c := NewClient(testUpstreamConfig(), &recorderStub{}, clock)

	url := srv.URL + "/alerts/active?point=47.6,-122.3"
	_, err := c.GetJSON(context.Background(), url)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	_, err = c.GetJSON(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, 2, hits, "a read after expiry must hit the server")
}

func TestGetJSONUnmatchedClassNeverCached(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(testUpstreamConfig(), &recorderStub{}, clockwork.NewFakeClock())

	url := srv.URL + "/stations/KSEA/observations"
	for i := 0; i < 3; i++ {
		_, err := c.GetJSON(context.Background(), url)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, hits)
}

func TestGetJSONSendsRequiredHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "weatherd-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(testUpstreamConfig(), &recorderStub{}, clockwork.NewFakeClock())
	_, err := c.GetJSON(context.Background(), srv.URL+"/ping")
	require.NoError(t, err)
}

func TestGetJSONRecordsHealthPerCall(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	rec := &recorderStub{}
	c := NewClient(testUpstreamConfig(), rec, clockwork.NewFakeClock())

	status = http.StatusOK
	_, err := c.GetJSON(context.Background(), srv.URL+"/one")
	require.NoError(t, err)

	status = http.StatusBadGateway
	_, err = c.GetJSON(context.Background(), srv.URL+"/two")
	require.Error(t, err)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.True(t, ue.Retryable())

	assert.Equal(t, []bool{true, false}, rec.results())
	assert.Equal(t, []string{ServiceNWS, ServiceNWS}, rec.services)
}

func TestGetJSONFailureKeepsOldCacheEntryAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(testUpstreamConfig(), &recorderStub{}, clockwork.NewFakeClock())
	_, err := c.GetJSON(context.Background(), srv.URL+"/forecast")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestTTLForURL(t *testing.T) {
	cfg := testUpstreamConfig()
	c := NewClient(cfg, &recorderStub{}, clockwork.NewFakeClock())

	testCases := []struct {
		url      string
		expected time.Duration
	}{
		{"https://api.weather.gov/alerts/active?point=1,2", cfg.AlertTTL},
		{"https://api.weather.gov/gridpoints/SEW/124,68/forecast/hourly", cfg.ForecastTTL},
		{"https://api.weather.gov/points/47.6062,-122.3321", cfg.PointsTTL},
		{"https://api.weather.gov/stations/KSEA", 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, c.ttlForURL(tc.url), tc.url)
	}
}
