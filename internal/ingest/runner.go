package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"weather-data-backend/internal/model"
	"weather-data-backend/internal/store"
	"weather-data-backend/internal/upstream"
)

// runTracker carries one run's audit trail. Every upstream call made during
// the run records an IngestEvent against the run id, whatever the run's
// eventual status.
type runTracker struct {
	store store.Store
	runID uuid.UUID
	job   string
}

func startRun(ctx context.Context, st store.Store, job string) (*runTracker, error) {
	runID, err := st.StartRun(ctx, job, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	log.Printf("[%s] run %s started", job, runID)
	return &runTracker{store: st, runID: runID, job: job}, nil
}

// event records one upstream call. A call the client answered from its TTL
// cache records the same way as a live fetch: status 200 and near-zero
// latency, one row per logical fetch. Failures to write the event are
// logged and swallowed; audit trouble must not fail the ingestion itself.
func (t *runTracker) event(ctx context.Context, source, endpoint string, started time.Time, callErr error) {
	ms := int(time.Since(started).Milliseconds())
	ev := model.IngestEvent{
		RunID:      &t.runID,
		Source:     source,
		Endpoint:   endpoint,
		ResponseMs: &ms,
		CreatedAt:  time.Now().UTC(),
	}
	var ue *upstream.UpstreamError
	if errors.As(callErr, &ue) {
		status := ue.StatusCode
		ev.HTTPStatus = &status
	} else if callErr == nil {
		ok := 200
		ev.HTTPStatus = &ok
	}
	if callErr != nil {
		ev.Error = callErr.Error()
	}
	if err := t.store.LogEvent(ctx, ev); err != nil {
		log.Printf("[%s] failed to record ingest event for %s: %v", t.job, endpoint, err)
	}
}

// finish transitions the run to its terminal status. A run fails only when
// a fatal error occurred outside the per-unit loop, or when every unit
// failed; partial failures still count as SUCCESS with the failures visible
// through the event rows.
func (t *runTracker) finish(ctx context.Context, totalUnits int, unitErrs []error, fatal error) {
	status := model.RunStatusSuccess
	var notes string
	switch {
	case fatal != nil:
		status = model.RunStatusFailed
		notes = fatal.Error()
	case totalUnits > 0 && len(unitErrs) == totalUnits:
		status = model.RunStatusFailed
		var merr *multierror.Error
		for _, err := range unitErrs {
			merr = multierror.Append(merr, err)
		}
		notes = fmt.Sprintf("all %d unit(s) failed: %v", totalUnits, merr)
	case len(unitErrs) > 0:
		var merr *multierror.Error
		for _, err := range unitErrs {
			merr = multierror.Append(merr, err)
		}
		notes = fmt.Sprintf("%d of %d unit(s) failed: %v", len(unitErrs), totalUnits, merr)
	}
	if err := t.store.FinishRun(ctx, t.runID, status, notes, time.Now().UTC()); err != nil {
		log.Printf("[%s] failed to finish run %s: %v", t.job, t.runID, err)
		return
	}
	log.Printf("[%s] run %s finished: %s", t.job, t.runID, status)
}

// runUnits executes fn for each unit index with at most workers in flight,
// returning the non-nil unit errors. One unit's failure never aborts its
// siblings.
func runUnits(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) []error {
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, i); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return errs
}
