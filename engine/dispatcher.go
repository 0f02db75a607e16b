package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/brandforge/errors"
)

// SubmitRequest describes a new generation job. Work is the caller-supplied
// per-item routine; the dispatcher never inspects it.
type SubmitRequest struct {
	TenantID   string
	OwnerID    string
	Kind       string
	TotalItems int
	Work       WorkFunc
}

// Dispatcher accepts job requests, persists the initial record, and hands
// execution to a detached goroutine the caller never awaits. Submit returns
// in the time it takes to write one job record, never in the time it takes to
// produce content.
type Dispatcher struct {
	store  *Store
	runner *Runner
	logger *zap.SugaredLogger

	// parentCtx outlives individual submit requests; a caller's HTTP context
	// is cancelled when the response is written, long before the job is done.
	parentCtx context.Context

	// sem bounds how many jobs are processing at once. A job submitted past
	// the bound stays pending until a slot frees; it is never dropped.
	sem chan struct{}

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. maxInFlight bounds concurrently
// processing jobs across all tenants.
func NewDispatcher(ctx context.Context, store *Store, runner *Runner, maxInFlight int, logger *zap.SugaredLogger) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Dispatcher{
		store:     store,
		runner:    runner,
		logger:    logger,
		parentCtx: ctx,
		sem:       make(chan struct{}, maxInFlight),
	}
}

// Submit synchronously creates the pending job and returns it; the runner is
// started on a detached execution path. If that path fails to start or faults
// before the runner takes over, the job is still driven to failed rather than
// left pending forever.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.Work == nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "work routine is required")
	}

	job, err := d.store.Create(ctx, req.TenantID, req.OwnerID, req.Kind, req.TotalItems)
	if err != nil {
		return nil, err
	}

	d.wg.Add(1)
	go d.execute(job, req.Work)

	return job, nil
}

// execute is the detached execution path for one job. The recover here is the
// dispatch-start guarantee: any fault before or around the runner finalizes
// the job instead of stranding it in pending.
func (d *Dispatcher) execute(job *Job, work WorkFunc) {
	defer d.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			d.logger.Errorw("Detached job execution panicked",
				"job_id", job.ID,
				"panic", p,
			)
			result := Result{"error": errors.Newf("job execution panicked: %v", p).Error()}
			if _, err := d.store.Finalize(context.Background(), job.TenantID, job.ID, JobStatusFailed, result); err != nil {
				d.logger.Errorw("Failed to finalize panicked job", "job_id", job.ID, "error", err)
			}
		}
	}()

	select {
	case d.sem <- struct{}{}:
	case <-d.parentCtx.Done():
		// Shutting down before the job got a slot - fail it rather than
		// leave it pending with no runner coming back for it.
		result := Result{"error": "dispatcher shut down before job started"}
		if _, err := d.store.Finalize(context.Background(), job.TenantID, job.ID, JobStatusFailed, result); err != nil {
			d.logger.Errorw("Failed to finalize unstarted job", "job_id", job.ID, "error", err)
		}
		return
	}
	defer func() { <-d.sem }()

	d.runner.Run(d.parentCtx, job, work)
}

// Drain waits for all detached job executions to finish, up to timeout.
// Returns true if everything exited cleanly.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.logger.Warnw("Dispatcher drain timeout - jobs may still be running", "timeout", timeout)
		return false
	}
}
