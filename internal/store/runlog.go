package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weather-data-backend/internal/model"
)

// StartRun allocates a run id and inserts a RUNNING row.
func (s *gormStore) StartRun(ctx context.Context, jobName string, now time.Time) (uuid.UUID, error) {
	runID := uuid.New()
	run := model.IngestRun{
		RunID:     runID,
		JobName:   jobName,
		StartedAt: now,
		Status:    model.RunStatusRunning,
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return runID, fmt.Errorf("failed to start run %s: %w", jobName, err)
	}
	return runID, nil
}

// FinishRun transitions a run out of RUNNING.
func (s *gormStore) FinishRun(ctx context.Context, runID uuid.UUID, status, notes string, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&model.IngestRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"finished_at": now,
			"status":      status,
			"notes":       notes,
		}).Error
}

// LogEvent records one upstream call made during a run. Events persist
// regardless of the run's eventual status so partial progress stays visible.
func (s *gormStore) LogEvent(ctx context.Context, ev model.IngestEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&ev).Error
}

// ReconcileAbandonedRuns fails any run still RUNNING that started before the
// given cutoff. Called on scheduler startup to clean up after a crash.
func (s *gormStore) ReconcileAbandonedRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.IngestRun{}).
		Where("status = ? AND started_at < ?", model.RunStatusRunning, olderThan).
		Updates(map[string]interface{}{
			"status":      model.RunStatusFailed,
			"finished_at": time.Now().UTC(),
			"notes":       "abandoned: still RUNNING at scheduler startup",
		})
	return res.RowsAffected, res.Error
}

func (s *gormStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.IngestRun
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) ListEvents(ctx context.Context, runID uuid.UUID) ([]model.IngestEvent, error) {
	var out []model.IngestEvent
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
