package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"weather-data-backend/internal/model"
)

// Scheduler owns the periodic execution of the ingestion jobs.
type Scheduler struct {
	svc       *Service
	scheduler *gocron.Scheduler

	// cancel releases the context handed to running jobs on Stop.
	cancel context.CancelFunc
}

func NewScheduler(svc *Service) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{svc: svc, scheduler: s}
}

// Start reconciles leftover state, runs the startup sequence, and begins
// periodic scheduling. It returns once the scheduler is running.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	cfg := s.svc.cfg

	// A run still RUNNING from before a restart will never finish.
	cutoff := time.Now().UTC().Add(-cfg.Ingest.AbandonedAfter)
	n, err := s.svc.store.ReconcileAbandonedRuns(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to reconcile abandoned runs: %w", err)
	}
	if n > 0 {
		log.Printf("Reconciled %d abandoned run(s) to %s", n, model.RunStatusFailed)
	}

	if err := s.seedTrackedPoints(ctx); err != nil {
		return err
	}
	if err := s.svc.BackfillFromCSV(ctx); err != nil {
		log.Printf("CSV backfill failed: %v", err)
	}

	// Gridpoints must exist before the forecast and station jobs have
	// anything to do, so the first refresh runs synchronously.
	if err := s.svc.RefreshGridpoints(ctx); err != nil {
		log.Printf("Initial gridpoint refresh failed: %v", err)
	}

	jobs := []struct {
		name        string
		interval    time.Duration
		immediately bool
		run         func(context.Context) error
	}{
		{JobGridpointRefresh, cfg.Ingest.GridpointRefresh, false, s.svc.RefreshGridpoints},
		{JobHourlyForecast, cfg.Ingest.HourlyForecast, true, s.svc.IngestHourlyForecasts},
		{JobAlerts, cfg.Ingest.Alerts, true, s.svc.IngestAlerts},
		{JobStationDiscovery, cfg.Ingest.StationRefresh, true, s.svc.DiscoverStations},
		{JobDailyHistory, cfg.Ingest.DailyHistory, true, s.svc.IngestDailyHistory},
	}
	for _, j := range jobs {
		job := j
		sched := s.scheduler.Every(job.interval)
		if job.immediately {
			sched = sched.StartImmediately()
		} else {
			sched = sched.WaitForSchedule()
		}
		if _, err := sched.Do(func() {
			if err := job.run(ctx); err != nil {
				log.Printf("[%s] job failed: %v", job.name, err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	s.scheduler.StartAsync()
	log.Printf("Ingestion scheduler started with %d job(s)", len(jobs))
	return nil
}

// Stop halts scheduling and cancels in-flight jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("Ingestion scheduler stopped.")
}

// seedTrackedPoints upserts the config-declared coordinates so ingestion
// covers them alongside any points added through the API.
func (s *Scheduler) seedTrackedPoints(ctx context.Context) error {
	for _, tp := range s.svc.cfg.TrackedPoints {
		if _, err := s.svc.store.UpsertTrackedPoint(ctx, tp.Name, tp.Lat, tp.Lon); err != nil {
			return fmt.Errorf("failed to seed tracked point %q: %w", tp.Name, err)
		}
	}
	return nil
}
