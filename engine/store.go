package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandforge/brandforge/errors"
)

// Store errors. Counter increments that would violate an invariant are
// rejected, not clamped; callers must treat them as logic errors.
var (
	// ErrCounterInvariant indicates an increment would push
	// completed_items+failed_items past total_items.
	ErrCounterInvariant = errors.New("counter increment violates item invariant")

	// ErrNotProcessing indicates a counter update against a job that is not
	// in the processing state.
	ErrNotProcessing = errors.New("job is not processing")

	// ErrNotPending indicates a processing transition against a job that has
	// already left pending.
	ErrNotPending = errors.New("job is not pending")
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Store persists generation jobs and is the single shared mutable resource
// across all jobs. Counter updates and state transitions are single
// conditional UPDATE statements, so concurrent item workers never lose an
// increment or violate the counter invariant. Every operation is implicitly
// tenant-scoped: a wrong tenant behaves exactly like not-found.
type Store struct {
	db          *sql.DB
	subscribers []chan *Job
	subMu       sync.RWMutex
}

// NewStore creates a new generation job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, tenant_id, owner_id, kind, total_items, completed_items, failed_items,
	status, result, created_at, started_at, completed_at, updated_at`

// Create inserts a new pending job. TotalItems is fixed for the job's
// lifetime; counters start at zero.
func (s *Store) Create(ctx context.Context, tenantID, ownerID, kind string, totalItems int) (*Job, error) {
	if tenantID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "tenant id is required")
	}
	if kind == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "kind is required")
	}
	if totalItems < 1 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "total items must be >= 1, got %d", totalItems)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		OwnerID:    ownerID,
		Kind:       kind,
		TotalItems: totalItems,
		Status:     JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ownerCol := sql.NullString{String: ownerID, Valid: ownerID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gen_jobs (id, tenant_id, owner_id, kind, total_items, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, ownerCol, job.Kind, job.TotalItems, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create job")
	}

	s.notifySubscribers(job)
	return job, nil
}

// Get returns the latest committed snapshot of a job. It never blocks on
// in-flight writes (WAL mode keeps readers off the writer's lock).
func (s *Store) Get(ctx context.Context, tenantID, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM gen_jobs WHERE id = ? AND tenant_id = ?`,
		jobID, tenantID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// TransitionToProcessing moves a pending job to processing and stamps
// StartedAt. Triggered exactly once per job by the runner's entry point.
func (s *Store) TransitionToProcessing(ctx context.Context, tenantID, jobID string) (*Job, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE gen_jobs
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ?`,
		JobStatusProcessing, now, now, jobID, tenantID, JobStatusPending,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to transition job to processing")
	}

	if err := s.requireOneRow(ctx, res, tenantID, jobID, ErrNotPending); err != nil {
		return nil, err
	}

	job, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	s.notifySubscribers(job)
	return job, nil
}

// IncrementCompleted atomically adds n to the completed counter.
// Safe under concurrent invocation from a job's item workers.
func (s *Store) IncrementCompleted(ctx context.Context, tenantID, jobID string, n int) error {
	return s.increment(ctx, tenantID, jobID, "completed_items", n)
}

// IncrementFailed atomically adds n to the failed counter.
// Safe under concurrent invocation from a job's item workers.
func (s *Store) IncrementFailed(ctx context.Context, tenantID, jobID string, n int) error {
	return s.increment(ctx, tenantID, jobID, "failed_items", n)
}

// increment performs a single conditional UPDATE so the counter invariant is
// checked and applied in one statement. Zero rows affected means the guard
// rejected the write; the follow-up read is only for diagnosis.
func (s *Store) increment(ctx context.Context, tenantID, jobID, column string, n int) error {
	if n < 1 {
		return errors.Wrapf(errors.ErrInvalidRequest, "increment must be >= 1, got %d", n)
	}

	// column is one of two compile-time constants, never caller input
	res, err := s.db.ExecContext(ctx, `
		UPDATE gen_jobs
		SET `+column+` = `+column+` + ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
		  AND status = ?
		  AND completed_items + failed_items + ? <= total_items`,
		n, time.Now().UTC(), jobID, tenantID, JobStatusProcessing, n,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to increment %s", column)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 1 {
		if job, getErr := s.Get(ctx, tenantID, jobID); getErr == nil {
			s.notifySubscribers(job)
		}
		return nil
	}

	// Guard rejected the write - figure out which condition failed.
	job, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if job.Status != JobStatusProcessing {
		return errors.Wrapf(ErrNotProcessing, "job %s has status %s", jobID, job.Status)
	}
	return errors.Wrapf(ErrCounterInvariant,
		"job %s: %d completed + %d failed + %d exceeds %d total",
		jobID, job.CompletedItems, job.FailedItems, n, job.TotalItems)
}

// Finalize transitions a job to a terminal state exactly once and seals the
// result map. A second call is a no-op that returns the already-stored
// terminal state - the runner's own failure-handling path may finalize twice,
// and the first write wins.
func (s *Store) Finalize(ctx context.Context, tenantID, jobID string, status JobStatus, result Result) (*Job, error) {
	if !status.IsTerminal() {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "finalize requires a terminal status, got %s", status)
	}
	if len(result) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "finalize requires a non-empty result")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal result")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE gen_jobs
		SET status = ?, result = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status IN (?, ?)`,
		status, string(resultJSON), now, now,
		jobID, tenantID, JobStatusPending, JobStatusProcessing,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to finalize job")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}

	job, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		if job.Status.IsTerminal() {
			// Duplicate finalize: first write already sealed the job.
			return job, nil
		}
		return nil, errors.AssertionFailedf("finalize affected no rows but job %s is %s", jobID, job.Status)
	}

	s.notifySubscribers(job)
	return job, nil
}

// List returns a tenant's jobs, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, tenantID string, status *JobStatus, limit int) ([]*Job, error) {
	var rows *sql.Rows
	var err error

	base := `SELECT ` + jobColumns + ` FROM gen_jobs WHERE tenant_id = ?`
	if status != nil {
		rows, err = s.db.QueryContext(ctx, base+` AND status = ? ORDER BY created_at DESC LIMIT ?`,
			tenantID, *status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY created_at DESC LIMIT ?`,
			tenantID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}

// Cleanup removes terminal jobs older than the given duration. The engine
// itself never deletes jobs; this exists for operators.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM gen_jobs
		WHERE status IN (?, ?) AND updated_at < ?`,
		JobStatusCompleted, JobStatusFailed, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(affected), nil
}

// requireOneRow diagnoses a conditional UPDATE that affected nothing.
func (s *Store) requireOneRow(ctx context.Context, res sql.Result, tenantID, jobID string, stateErr error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 1 {
		return nil
	}
	job, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	return errors.Wrapf(stateErr, "job %s has status %s", jobID, job.Status)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (*Job, error) {
	var job Job
	var owner sql.NullString
	var result sql.NullString
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&job.ID, &job.TenantID, &owner, &job.Kind,
		&job.TotalItems, &job.CompletedItems, &job.FailedItems,
		&job.Status, &result,
		&job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.OwnerID = owner.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal job result")
		}
	}
	return &job, nil
}
