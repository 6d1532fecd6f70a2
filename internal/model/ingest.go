package model

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses. A run starts RUNNING and finishes SUCCESS or FAILED.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// IngestRun is one execution of a named ingestion job.
type IngestRun struct {
	RunID      uuid.UUID `gorm:"primaryKey;type:uuid"`
	JobName    string    `gorm:"size:64;not null;index"`
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt *time.Time
	Status     string `gorm:"size:16;not null;index"`
	Notes      string `gorm:"type:text"`
}

// IngestEvent is one upstream HTTP call made during a run. RunID may be nil
// when the run context was lost, but an event never references more than one
// run.
type IngestEvent struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	RunID      *uuid.UUID `gorm:"type:uuid;index"`
	Source     string     `gorm:"size:32;not null"`
	Endpoint   string     `gorm:"size:1024;not null"`
	HTTPStatus *int
	ResponseMs *int
	Error      string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
}
