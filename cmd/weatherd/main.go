package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"weather-data-backend/config"
	"weather-data-backend/internal/api"
	"weather-data-backend/internal/db"
	"weather-data-backend/internal/ingest"
	"weather-data-backend/internal/metrics"
	"weather-data-backend/internal/spatial"
	"weather-data-backend/internal/store"
	"weather-data-backend/internal/upstream"
)

func main() {
	logger := log.New(os.Stdout, "weatherd ", log.LstdFlags)

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		logger.Println("loaded environment overrides from .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Upstream.UserAgent == "" {
		logger.Fatalf("upstream.user_agent must be configured; the forecast provider rejects anonymous clients")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	health := metrics.NewHealthTracker(clockwork.NewRealClock(), reg)

	nws := upstream.NewClient(&cfg.Upstream, health, clockwork.NewRealClock())

	var noaa *upstream.NOAAClient
	if cfg.NOAA.Enabled {
		if cfg.NOAA.Token == "" {
			logger.Fatalf("noaa.token must be configured when the historical-data integration is enabled")
		}
		noaa = upstream.NewNOAAClient(&cfg.NOAA, health)
		logger.Println("historical-data integration enabled")
	} else {
		logger.Println("historical-data integration disabled")
	}

	resolver := spatial.NewResolver(appStore, cfg.NOAA.StationRadiusKm, cfg.NOAA.MapKeep)

	svc := ingest.NewService(cfg, appStore, nws, noaa, resolver)
	scheduler := ingest.NewScheduler(svc)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatalf("failed to start ingestion scheduler: %v", err)
	}

	router := api.NewRouter(&cfg.Server, appStore, health, reg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	logger.Println("Server gracefully stopped")
}
