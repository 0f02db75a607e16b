package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/brandforge/brandforge/errors"
)

// ItemResult is what a work routine produces for one successfully generated
// item, a reference to the artifact rather than the artifact itself.
type ItemResult struct {
	ArtifactID string                 `json:"artifact_id"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
}

// WorkFunc produces one item of a job. Implementations typically drive the
// external generation adapter; an error (or panic) from one item never aborts
// the rest of the batch.
type WorkFunc func(ctx context.Context, job *Job, index int) (ItemResult, error)

// Runner owns the processing lifetime of a single job: it transitions the job
// to processing, attempts every item inside its own error boundary, keeps the
// counters current, and seals the job with exactly one terminal transition.
// No two runners ever operate on the same job id; the dispatcher guarantees
// exclusive ownership.
type Runner struct {
	store       *Store
	concurrency int
	logger      *zap.SugaredLogger
}

// NewRunner creates a runner. concurrency bounds how many items of one job
// run in parallel; 1 means sequential item processing.
func NewRunner(store *Store, concurrency int, logger *zap.SugaredLogger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{store: store, concurrency: concurrency, logger: logger}
}

// itemOutcome records one item attempt for the terminal result map.
type itemOutcome struct {
	index    int
	artifact *ItemResult
	errMsg   string
}

// Run processes the job to a terminal state. Per-item failures increment the
// failed counter and processing continues; only a fault outside the per-item
// boundary (a store failure, or a panic in the runner itself) fails the whole
// job. Run always finalizes the job before returning.
func (r *Runner) Run(ctx context.Context, job *Job, work WorkFunc) {
	log := r.logger.With("job_id", job.ID, "tenant_id", job.TenantID, "kind", job.Kind)

	if _, err := r.store.TransitionToProcessing(ctx, job.TenantID, job.ID); err != nil {
		log.Errorw("Failed to start job", "error", err)
		r.finalizeFailed(job, errors.Wrap(err, "failed to enter processing"))
		return
	}
	log.Infow("Job processing started", "total_items", job.TotalItems)

	outcomes, runnerFault := r.runItems(ctx, job, work, log)
	if runnerFault != nil {
		log.Errorw("Runner fault, failing job", "error", runnerFault)
		r.finalizeFailed(job, runnerFault)
		return
	}

	result := buildResult(outcomes)
	final, err := r.store.Finalize(ctx, job.TenantID, job.ID, JobStatusCompleted, result)
	if err != nil {
		log.Errorw("Failed to finalize job", "error", err)
		r.finalizeFailed(job, errors.Wrap(err, "failed to finalize"))
		return
	}
	log.Infow("Job completed",
		"completed_items", final.CompletedItems,
		"failed_items", final.FailedItems,
	)
}

// runItems attempts every item with bounded parallelism. The returned error
// is a runner-level fault (store unavailable); per-item failures are folded
// into the outcomes instead.
func (r *Runner) runItems(ctx context.Context, job *Job, work WorkFunc, log *zap.SugaredLogger) ([]itemOutcome, error) {
	var (
		mu       sync.Mutex
		outcomes []itemOutcome
		fault    error
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, r.concurrency)

	recordFault := func(err error) {
		mu.Lock()
		if fault == nil {
			fault = err
		}
		mu.Unlock()
	}
	faulted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fault != nil
	}

	for index := 0; index < job.TotalItems; index++ {
		if faulted() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer func() { <-sem }()

			res, itemErr := r.attemptItem(ctx, job, work, index)
			if itemErr != nil {
				log.Warnw("Item failed", "index", index, "error", itemErr)
				if err := r.store.IncrementFailed(ctx, job.TenantID, job.ID, 1); err != nil {
					recordFault(errors.Wrapf(err, "failed to record item %d failure", index))
					return
				}
				mu.Lock()
				outcomes = append(outcomes, itemOutcome{index: index, errMsg: itemErr.Error()})
				mu.Unlock()
				return
			}

			if err := r.store.IncrementCompleted(ctx, job.TenantID, job.ID, 1); err != nil {
				recordFault(errors.Wrapf(err, "failed to record item %d completion", index))
				return
			}
			mu.Lock()
			outcomes = append(outcomes, itemOutcome{index: index, artifact: &res})
			mu.Unlock()
		}(index)
	}
	wg.Wait()

	return outcomes, fault
}

// attemptItem is the per-item error boundary: panics in caller-supplied work
// become item failures, never runner faults.
func (r *Runner) attemptItem(ctx context.Context, job *Job, work WorkFunc, index int) (res ItemResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("item work panicked: %v", p)
		}
	}()
	return work(ctx, job, index)
}

// finalizeFailed drives the job to failed with a single top-level error.
// Finalize is idempotent, so racing a concurrent terminal write is safe.
// Uses a fresh context: the runner's own context may already be cancelled,
// and a job must never be stranded in processing because of that.
func (r *Runner) finalizeFailed(job *Job, cause error) {
	ctx := context.Background()
	result := Result{"error": cause.Error()}
	if _, err := r.store.Finalize(ctx, job.TenantID, job.ID, JobStatusFailed, result); err != nil {
		r.logger.Errorw("Failed to finalize failed job",
			"job_id", job.ID,
			"error", err,
			"cause", cause,
		)
	}
}

// buildResult assembles the terminal result map: produced artifact ids in
// item order plus per-item error detail for partial-failure visibility.
func buildResult(outcomes []itemOutcome) Result {
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	artifacts := make([]interface{}, 0, len(outcomes))
	itemErrors := make(map[string]string)
	for _, o := range outcomes {
		if o.artifact != nil {
			artifacts = append(artifacts, map[string]interface{}{
				"index":       o.index,
				"artifact_id": o.artifact.ArtifactID,
			})
		} else {
			itemErrors[fmt.Sprintf("%d", o.index)] = o.errMsg
		}
	}

	result := Result{"artifacts": artifacts}
	if len(itemErrors) > 0 {
		result["item_errors"] = itemErrors
	}
	return result
}
