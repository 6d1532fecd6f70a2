package metrics

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// WindowMinutes is the size of the rolling health window.
const WindowMinutes = 60

// Service status classifications derived from the rolling window.
const (
	StatusNoData   = "no-data"
	StatusDown     = "down"
	StatusDegraded = "degraded"
	StatusOK       = "ok"
)

// Snapshot summarizes one service's calls over the rolling window.
type Snapshot struct {
	Service          string  `json:"service"`
	CallsLastHour    int64   `json:"calls_last_hour"`
	FailuresLastHour int64   `json:"failures_last_hour"`
	FailurePct       float64 `json:"failure_pct"`
	Status           string  `json:"status"`
}

// serviceBuckets is a fixed ring of per-minute counters. Stale buckets are
// detected by their stored minute epoch and reset lazily on write, which
// bounds memory without a sweeper goroutine.
type serviceBuckets struct {
	mu     sync.Mutex
	minute [WindowMinutes]int64
	total  [WindowMinutes]int64
	fail   [WindowMinutes]int64
}

// HealthTracker maintains rolling call-outcome windows per named upstream
// service. Construct one instance and share it by reference; a fresh
// instance per test gives isolation.
type HealthTracker struct {
	mu       sync.RWMutex
	services map[string]*serviceBuckets
	clock    clockwork.Clock
	calls    *prometheus.CounterVec
}

// NewHealthTracker creates a tracker using the given clock. The prometheus
// counter is registered on the default registry; pass a nil registerer to
// skip registration (tests).
func NewHealthTracker(clock clockwork.Clock, reg prometheus.Registerer) *HealthTracker {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weatherd",
		Name:      "upstream_calls_total",
		Help:      "Upstream HTTP calls by service and outcome.",
	}, []string{"service", "outcome"})
	if reg != nil {
		reg.MustRegister(calls)
	}
	return &HealthTracker{
		services: make(map[string]*serviceBuckets),
		clock:    clock,
		calls:    calls,
	}
}

// Record registers one call outcome for a named service.
func (t *HealthTracker) Record(service string, success bool) {
	if service == "" {
		return
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.calls.WithLabelValues(service, outcome).Inc()

	b := t.buckets(service)
	nowMin := t.clock.Now().Unix() / 60
	idx := nowMin % WindowMinutes

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.minute[idx] != nowMin {
		b.minute[idx] = nowMin
		b.total[idx] = 0
		b.fail[idx] = 0
	}
	b.total[idx]++
	if !success {
		b.fail[idx]++
	}
}

// SnapshotFor computes the current rolling-window summary for one service.
func (t *HealthTracker) SnapshotFor(service string) Snapshot {
	b := t.buckets(service)
	nowMin := t.clock.Now().Unix() / 60

	b.mu.Lock()
	defer b.mu.Unlock()

	var totalSum, failSum int64
	for i := 0; i < WindowMinutes; i++ {
		bucketMin := b.minute[i]
		if bucketMin == 0 {
			continue
		}
		if nowMin-bucketMin >= WindowMinutes {
			continue
		}
		totalSum += b.total[i]
		failSum += b.fail[i]
	}

	var failurePct float64
	if totalSum > 0 {
		failurePct = float64(failSum) * 100.0 / float64(totalSum)
	}

	status := StatusOK
	switch {
	case totalSum == 0:
		status = StatusNoData
	case failurePct >= 50:
		status = StatusDown
	case failurePct >= 10:
		status = StatusDegraded
	}

	return Snapshot{
		Service:          service,
		CallsLastHour:    totalSum,
		FailuresLastHour: failSum,
		FailurePct:       failurePct,
		Status:           status,
	}
}

// SnapshotAll returns snapshots for every service seen so far. Each service
// is computed independently; no cross-service consistency is implied.
func (t *HealthTracker) SnapshotAll() []Snapshot {
	t.mu.RLock()
	names := make([]string, 0, len(t.services))
	for name := range t.services {
		names = append(names, name)
	}
	t.mu.RUnlock()

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, t.SnapshotFor(name))
	}
	return out
}

func (t *HealthTracker) buckets(service string) *serviceBuckets {
	t.mu.RLock()
	b, ok := t.services[service]
	t.mu.RUnlock()
	if ok {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok = t.services[service]; ok {
		return b
	}
	b = &serviceBuckets{}
	t.services[service] = b
	return b
}
