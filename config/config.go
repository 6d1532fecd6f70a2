package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	NOAA     NOAAConfig     `yaml:"noaa"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Database DatabaseConfig `yaml:"database"`

	TrackedPoints []TrackedPoint `yaml:"tracked_points"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// UpstreamConfig holds NWS client settings, including the per-endpoint-class
// cache TTLs.
type UpstreamConfig struct {
	UserAgent          string `yaml:"user_agent"`
	BaseURL            string `yaml:"base_url"`
	AlertTTLSeconds    int    `yaml:"alert_ttl_seconds"`
	ForecastTTLSeconds int    `yaml:"forecast_ttl_seconds"`
	PointsTTLSeconds   int    `yaml:"points_ttl_seconds"`

	AlertTTL    time.Duration `yaml:"-"`
	ForecastTTL time.Duration `yaml:"-"`
	PointsTTL   time.Duration `yaml:"-"`
}

// NOAAConfig holds the historical-data provider settings.
type NOAAConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Token            string  `yaml:"token"`
	BaseURL          string  `yaml:"base_url"`
	QPS              float64 `yaml:"qps"`
	StationRadiusKm  float64 `yaml:"station_radius_km"`
	StationLimit     int     `yaml:"station_limit"`
	MapKeep          int     `yaml:"map_keep"`
	BackfillStart    string  `yaml:"backfill_start"`
	HistoryChunkDays int     `yaml:"history_chunk_days"`
}

// IngestConfig holds job cadences and worker limits.
type IngestConfig struct {
	GridpointRefreshSeconds int    `yaml:"gridpoint_refresh_seconds"`
	HourlyForecastSeconds   int    `yaml:"hourly_forecast_seconds"`
	AlertsSeconds           int    `yaml:"alerts_seconds"`
	StationRefreshSeconds   int    `yaml:"station_refresh_seconds"`
	DailyHistorySeconds     int    `yaml:"daily_history_seconds"`
	Workers                 int    `yaml:"workers"`
	AbandonedAfterSeconds   int    `yaml:"abandoned_after_seconds"`
	StationHistoricDir      string `yaml:"station_historic_dir"`

	GridpointRefresh time.Duration `yaml:"-"`
	HourlyForecast   time.Duration `yaml:"-"`
	Alerts           time.Duration `yaml:"-"`
	StationRefresh   time.Duration `yaml:"-"`
	DailyHistory     time.Duration `yaml:"-"`
	AbandonedAfter   time.Duration `yaml:"-"`
}

// TrackedPoint is a configured coordinate pair to ingest for.
type TrackedPoint struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path and applies environment
// overrides for secrets and deploy-specific values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("NWS_USER_AGENT"); v != "" {
		cfg.Upstream.UserAgent = v
	}
	if v := os.Getenv("NOAA_TOKEN"); v != "" {
		cfg.NOAA.Token = v
	}
	if v := os.Getenv("NOAA_API_ENABLED"); v != "" {
		cfg.NOAA.Enabled = v == "true" || v == "1"
	}
	overrideInt("NWS_ALERT_TTL_SECONDS", &cfg.Upstream.AlertTTLSeconds)
	overrideInt("NWS_FORECAST_TTL_SECONDS", &cfg.Upstream.ForecastTTLSeconds)
	overrideInt("NWS_POINTS_TTL_SECONDS", &cfg.Upstream.PointsTTLSeconds)
}

func overrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: ignoring non-numeric %s=%q", key, v)
			return
		}
		*dst = n
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "https://api.weather.gov"
	}
	if cfg.Upstream.AlertTTLSeconds <= 0 {
		cfg.Upstream.AlertTTLSeconds = 60
	}
	if cfg.Upstream.ForecastTTLSeconds <= 0 {
		cfg.Upstream.ForecastTTLSeconds = 21600
	}
	if cfg.Upstream.PointsTTLSeconds <= 0 {
		cfg.Upstream.PointsTTLSeconds = 86400
	}
	cfg.Upstream.AlertTTL = time.Duration(cfg.Upstream.AlertTTLSeconds) * time.Second
	cfg.Upstream.ForecastTTL = time.Duration(cfg.Upstream.ForecastTTLSeconds) * time.Second
	cfg.Upstream.PointsTTL = time.Duration(cfg.Upstream.PointsTTLSeconds) * time.Second

	if cfg.NOAA.BaseURL == "" {
		cfg.NOAA.BaseURL = "https://www.ncei.noaa.gov/cdo-web/api/v2"
	}
	if cfg.NOAA.QPS <= 0 {
		cfg.NOAA.QPS = 1
	}
	if cfg.NOAA.StationRadiusKm <= 0 {
		cfg.NOAA.StationRadiusKm = 50
	}
	if cfg.NOAA.StationLimit <= 0 {
		cfg.NOAA.StationLimit = 25
	}
	if cfg.NOAA.MapKeep <= 0 {
		cfg.NOAA.MapKeep = 5
	}
	if cfg.NOAA.BackfillStart == "" {
		cfg.NOAA.BackfillStart = "2016-01-01"
	}
	if cfg.NOAA.HistoryChunkDays <= 0 {
		cfg.NOAA.HistoryChunkDays = 365
	}

	if cfg.Ingest.GridpointRefreshSeconds <= 0 {
		cfg.Ingest.GridpointRefreshSeconds = 86400
	}
	if cfg.Ingest.HourlyForecastSeconds <= 0 {
		cfg.Ingest.HourlyForecastSeconds = 1800
	}
	if cfg.Ingest.AlertsSeconds <= 0 {
		cfg.Ingest.AlertsSeconds = 300
	}
	if cfg.Ingest.StationRefreshSeconds <= 0 {
		cfg.Ingest.StationRefreshSeconds = 604800
	}
	if cfg.Ingest.DailyHistorySeconds <= 0 {
		cfg.Ingest.DailyHistorySeconds = 86400
	}
	if cfg.Ingest.Workers <= 0 {
		log.Printf("ingest.workers is not set or invalid; defaulting to 4")
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.AbandonedAfterSeconds <= 0 {
		cfg.Ingest.AbandonedAfterSeconds = 3600
	}
	cfg.Ingest.GridpointRefresh = time.Duration(cfg.Ingest.GridpointRefreshSeconds) * time.Second
	cfg.Ingest.HourlyForecast = time.Duration(cfg.Ingest.HourlyForecastSeconds) * time.Second
	cfg.Ingest.Alerts = time.Duration(cfg.Ingest.AlertsSeconds) * time.Second
	cfg.Ingest.StationRefresh = time.Duration(cfg.Ingest.StationRefreshSeconds) * time.Second
	cfg.Ingest.DailyHistory = time.Duration(cfg.Ingest.DailyHistorySeconds) * time.Second
	cfg.Ingest.AbandonedAfter = time.Duration(cfg.Ingest.AbandonedAfterSeconds) * time.Second

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
}
