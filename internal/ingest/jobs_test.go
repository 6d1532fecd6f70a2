package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"weather-data-backend/config"
	"weather-data-backend/internal/db"
	"weather-data-backend/internal/metrics"
	"weather-data-backend/internal/model"
	"weather-data-backend/internal/spatial"
	"weather-data-backend/internal/store"
	"weather-data-backend/internal/upstream"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return store.NewGormStore(gdb)
}

// newTestService builds a Service talking to the given NWS test server. TTLs
// stay zero so nothing is cached between runs.
func newTestService(t *testing.T, st store.Store, nwsBase string) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Upstream.UserAgent = "weatherd-test"
	cfg.Upstream.BaseURL = nwsBase
	cfg.Ingest.Workers = 2
	cfg.NOAA.StationRadiusKm = 50
	cfg.NOAA.MapKeep = 5
	cfg.NOAA.HistoryChunkDays = 365
	cfg.NOAA.BackfillStart = "2026-01-01"

	health := metrics.NewHealthTracker(clockwork.NewFakeClock(), nil)
	nws := upstream.NewClient(&cfg.Upstream, health, clockwork.NewFakeClock())
	resolver := spatial.NewResolver(st, cfg.NOAA.StationRadiusKm, cfg.NOAA.MapKeep)
	return NewService(cfg, st, nws, nil, resolver)
}

func hourlyBody(issued string) string {
	return fmt.Sprintf(`{
		"properties": {
			"updateTime": %q,
			"periods": [{
				"startTime": "2026-08-30T12:00:00Z",
				"endTime": "2026-08-30T13:00:00Z",
				"temperature": 68,
				"temperatureUnit": "F",
				"windSpeed": "10 mph",
				"windDirection": "NW",
				"shortForecast": "Sunny",
				"probabilityOfPrecipitation": {"value": 20},
				"relativeHumidity": {"value": 55}
			}]
		}
	}`, issued)
}

func seedGridpoint(t *testing.T, st store.Store, gridID, hourlyURL string) {
	t.Helper()
	require.NoError(t, st.UpsertGridpoint(context.Background(), model.Gridpoint{
		GridID:            gridID,
		Office:            strings.SplitN(gridID, ":", 2)[0],
		Lat:               40,
		Lon:               -100,
		ForecastHourlyURL: hourlyURL,
		LastRefreshedAt:   time.Now().UTC(),
	}))
}

func TestIngestHourlyForecastsPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad/") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(hourlyBody("2026-08-30T11:30:00Z")))
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedGridpoint(t, st, fmt.Sprintf("SEW:%d,0", i), fmt.Sprintf("%s/ok/%d/forecast/hourly", srv.URL, i))
	}
	for i := 0; i < 2; i++ {
		seedGridpoint(t, st, fmt.Sprintf("PDX:%d,0", i), fmt.Sprintf("%s/bad/%d/forecast/hourly", srv.URL, i))
	}

	require.NoError(t, svc.IngestHourlyForecasts(ctx))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, JobHourlyForecast, run.JobName)
	assert.Equal(t, model.RunStatusSuccess, run.Status, "partial failure still counts as SUCCESS")
	assert.NotNil(t, run.FinishedAt)
	assert.Contains(t, run.Notes, "2 of 5")

	events, err := st.ListEvents(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, events, 5)
	var failed int
	for _, ev := range events {
		assert.Equal(t, upstream.ServiceNWS, ev.Source)
		if ev.Error != "" {
			failed++
			require.NotNil(t, ev.HTTPStatus)
			assert.Equal(t, http.StatusBadGateway, *ev.HTTPStatus)
		}
	}
	assert.Equal(t, 2, failed)
}

func TestIngestHourlyForecastsAllFailedRunIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	seedGridpoint(t, st, "SEW:1,1", srv.URL+"/forecast/hourly")
	require.NoError(t, svc.IngestHourlyForecasts(ctx))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Notes)
}

func TestIngestHourlyForecastsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(hourlyBody("2026-08-30T11:30:00Z")))
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	seedGridpoint(t, st, "SEW:1,1", srv.URL+"/forecast/hourly")

	require.NoError(t, svc.IngestHourlyForecasts(ctx))
	require.NoError(t, svc.IngestHourlyForecasts(ctx))

	var count int64
	require.NoError(t, st.DB().Model(&model.HourlyForecast{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "re-ingesting an identical issuance must not duplicate rows")
}

func TestIngestHourlyForecastsMissingUpdateTimeIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"properties": {
				"periods": [{
					"startTime": "2026-08-30T12:00:00Z",
					"endTime": "2026-08-30T13:00:00Z",
					"temperature": 68,
					"temperatureUnit": "F",
					"shortForecast": "Sunny"
				}]
			}
		}`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	seedGridpoint(t, st, "SEW:1,1", srv.URL+"/forecast/hourly")

	require.NoError(t, svc.IngestHourlyForecasts(ctx))
	require.NoError(t, svc.IngestHourlyForecasts(ctx))

	var rows []model.HourlyForecast
	require.NoError(t, st.DB().Find(&rows).Error)
	require.Len(t, rows, 1, "a document without updateTime must still upsert, not duplicate")
	require.NotNil(t, rows[0].IssuedAt, "issuance falls back to the first period start")
	assert.True(t, rows[0].IssuedAt.Equal(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
}

func TestIngestHourlyForecastsNewIssuanceAddsRow(t *testing.T) {
	issued := "2026-08-30T11:30:00Z"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(hourlyBody(issued)))
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	seedGridpoint(t, st, "SEW:1,1", srv.URL+"/forecast/hourly")

	require.NoError(t, svc.IngestHourlyForecasts(ctx))
	issued = "2026-08-30T12:30:00Z"
	require.NoError(t, svc.IngestHourlyForecasts(ctx))

	var count int64
	require.NoError(t, st.DB().Model(&model.HourlyForecast{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "a newer issuance coexists with the old one")

	// The read-time derivation picks the newer issuance for the slot.
	from := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	rows, err := st.LatestHourly(ctx, "SEW:1,1", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].IssuedAt)
	assert.True(t, rows[0].IssuedAt.Equal(time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)))
}

func TestRefreshGridpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/points/"))
		fmt.Fprintf(w, `{
			"properties": {
				"gridId": "SEW",
				"gridX": 124,
				"gridY": 68,
				"forecastHourly": "%s/gridpoints/SEW/124,68/forecast/hourly",
				"forecastGridData": "%s/gridpoints/SEW/124,68"
			}
		}`, "https://api.test", "https://api.test")
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	_, err := st.UpsertTrackedPoint(ctx, "Seattle", 47.6062, -122.3321)
	require.NoError(t, err)

	require.NoError(t, svc.RefreshGridpoints(ctx))

	gp, err := st.GetGridpoint(ctx, "SEW:124,68")
	require.NoError(t, err)
	assert.Equal(t, "SEW", gp.Office)
	assert.Equal(t, 124, gp.GridX)
	assert.Equal(t, 47.6062, gp.Lat)
	assert.Contains(t, gp.ForecastHourlyURL, "/forecast/hourly")

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusSuccess, runs[0].Status)
}

func TestIngestAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"features": [{
				"properties": {
					"id": "urn:oid:2.49.0.1.840.0.1234",
					"event": "Wind Advisory",
					"severity": "Moderate",
					"headline": "Wind Advisory until 10 PM",
					"effective": "2026-08-30T10:00:00Z",
					"expires": "2026-08-31T04:00:00Z",
					"status": "Actual",
					"messageType": "Alert",
					"areaDesc": "Seattle Metro"
				}
			}]
		}`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	svc := newTestService(t, st, srv.URL)
	ctx := context.Background()

	_, err := st.UpsertTrackedPoint(ctx, "Seattle", 47.6062, -122.3321)
	require.NoError(t, err)

	require.NoError(t, svc.IngestAlerts(ctx))
	require.NoError(t, svc.IngestAlerts(ctx))

	var count int64
	require.NoError(t, st.DB().Model(&model.Alert{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "alerts upsert by id")

	active, err := st.ActiveAlerts(ctx, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Wind Advisory", active[0].Event)

	active, err = st.ActiveAlerts(ctx, time.Date(2026, 8, 31, 5, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, active, "expired alerts drop out of the active view")
}
