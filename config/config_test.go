package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  user_agent: "weatherd test contact@example.com"
database:
  dsn: "host=localhost"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.weather.gov", cfg.Upstream.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Upstream.AlertTTL)
	assert.Equal(t, 6*time.Hour, cfg.Upstream.ForecastTTL)
	assert.Equal(t, 24*time.Hour, cfg.Upstream.PointsTTL)

	assert.Equal(t, "https://www.ncei.noaa.gov/cdo-web/api/v2", cfg.NOAA.BaseURL)
	assert.Equal(t, 5, cfg.NOAA.MapKeep)
	assert.Equal(t, 50.0, cfg.NOAA.StationRadiusKm)

	assert.Equal(t, 30*time.Minute, cfg.Ingest.HourlyForecast)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.Alerts)
	assert.Equal(t, time.Hour, cfg.Ingest.AbandonedAfter)
	assert.Equal(t, 4, cfg.Ingest.Workers)

	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
upstream:
  user_agent: "from-yaml"
  alert_ttl_seconds: 120
database:
  dsn: "host=yaml"
`)

	t.Setenv("DB_DSN", "host=env")
	t.Setenv("NWS_USER_AGENT", "from-env")
	t.Setenv("NOAA_TOKEN", "secret")
	t.Setenv("NOAA_API_ENABLED", "true")
	t.Setenv("NWS_ALERT_TTL_SECONDS", "30")
	t.Setenv("NWS_FORECAST_TTL_SECONDS", "notanumber")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=env", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Upstream.UserAgent)
	assert.Equal(t, "secret", cfg.NOAA.Token)
	assert.True(t, cfg.NOAA.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Upstream.AlertTTL, "env wins over yaml")
	assert.Equal(t, 6*time.Hour, cfg.Upstream.ForecastTTL, "bad numeric override is ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadTrackedPoints(t *testing.T) {
	path := writeConfig(t, `
upstream:
  user_agent: "ua"
tracked_points:
  - name: "Seattle"
    lat: 47.6062
    lon: -122.3321
  - name: "Portland"
    lat: 45.5152
    lon: -122.6784
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.TrackedPoints, 2)
	assert.Equal(t, "Seattle", cfg.TrackedPoints[0].Name)
	assert.Equal(t, 47.6062, cfg.TrackedPoints[0].Lat)
}
