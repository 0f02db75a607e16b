package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the progress contract consumed by polling clients. It is always
// well-formed; status readers never see a propagated error from job execution.
type Snapshot struct {
	JobID          string    `json:"job_id"`
	Status         JobStatus `json:"status"`
	Percent        int       `json:"percent"`
	CompletedItems int       `json:"completed_items"`
	FailedItems    int       `json:"failed_items"`
	TotalItems     int       `json:"total_items"`
	Result         Result    `json:"result,omitempty"`
}

// DefaultExpectedDuration is used for single-unit kinds with no calibrated
// expected duration configured.
const DefaultExpectedDuration = 120 * time.Second

// Reporter derives progress snapshots from stored jobs. For single-unit jobs
// it estimates percent from elapsed wall-clock time against a per-kind
// expected duration - a calibration number, not a measurement.
type Reporter struct {
	store    *Store
	expected map[string]time.Duration
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewReporter creates a progress reporter. expectedSeconds maps job kind to
// the expected duration (in seconds) of a single-unit job of that kind.
func NewReporter(store *Store, expectedSeconds map[string]int, logger *zap.SugaredLogger) *Reporter {
	expected := make(map[string]time.Duration, len(expectedSeconds))
	for kind, secs := range expectedSeconds {
		expected[kind] = time.Duration(secs) * time.Second
	}
	return &Reporter{
		store:    store,
		expected: expected,
		logger:   logger,
		now:      time.Now,
	}
}

// GetProgress returns the current snapshot for a job, tenant-scoped.
func (r *Reporter) GetProgress(ctx context.Context, tenantID, jobID string) (*Snapshot, error) {
	job, err := r.store.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	return r.Snapshot(job), nil
}

// Snapshot derives the progress snapshot for a job.
func (r *Reporter) Snapshot(job *Job) *Snapshot {
	return &Snapshot{
		JobID:          job.ID,
		Status:         job.Status,
		Percent:        r.percent(job),
		CompletedItems: job.CompletedItems,
		FailedItems:    job.FailedItems,
		TotalItems:     job.TotalItems,
		Result:         job.Result,
	}
}

func (r *Reporter) percent(job *Job) int {
	switch job.Status {
	case JobStatusCompleted:
		return 100
	case JobStatusFailed:
		return 0
	case JobStatusPending:
		return 0
	}

	// processing
	if job.TotalItems > 1 {
		return 100 * job.AttemptedItems() / job.TotalItems
	}

	// Single long-running unit with no discrete sub-steps: estimate from
	// elapsed time. This is explicitly a heuristic - it exists only to give a
	// polling client a non-stalling visual signal.
	if job.StartedAt == nil {
		return 0
	}
	expected, ok := r.expected[job.Kind]
	if !ok {
		expected = DefaultExpectedDuration
	}
	return EstimatePercent(r.now().Sub(*job.StartedAt), expected)
}

// EstimatePercent maps elapsed time against an expected duration to a percent
// clamped to [5, 95]: never 0% once started, never 100% before the terminal
// transition. Pure function, unit-testable in isolation.
func EstimatePercent(elapsed, expected time.Duration) int {
	if expected <= 0 {
		expected = DefaultExpectedDuration
	}
	percent := int(100 * elapsed / expected)
	if percent < 5 {
		return 5
	}
	if percent > 95 {
		return 95
	}
	return percent
}
