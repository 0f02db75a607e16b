package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brandforge/brandforge/errors"
	bftest "github.com/brandforge/brandforge/internal/testing"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// waitForTerminal polls until the job reaches a terminal state.
func waitForTerminal(t *testing.T, store *Store, tenantID, jobID string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), tenantID, jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestRunnerPartialFailureStillCompletes(t *testing.T) {
	store := NewStore(bftest.CreateTestDB(t))
	runner := NewRunner(store, 1, testLogger())
	ctx := context.Background()

	job, err := store.Create(ctx, "tenant-a", "", "flyer.batch", 5)
	require.NoError(t, err)

	// Items 1 and 3 fail; 0, 2, 4 succeed
	work := func(ctx context.Context, job *Job, index int) (ItemResult, error) {
		if index == 1 || index == 3 {
			return ItemResult{}, errors.New("content policy rejection")
		}
		return ItemResult{ArtifactID: "art-" + string(rune('a'+index))}, nil
	}

	runner.Run(ctx, job, work)

	final, err := store.Get(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.CompletedItems)
	assert.Equal(t, 2, final.FailedItems)
	require.NotNil(t, final.CompletedAt)

	itemErrors, ok := final.Result["item_errors"].(map[string]interface{})
	require.True(t, ok, "result should carry per-item error detail")
	assert.Contains(t, itemErrors, "1")
	assert.Contains(t, itemErrors, "3")
	artifacts, ok := final.Result["artifacts"].([]interface{})
	require.True(t, ok)
	assert.Len(t, artifacts, 3)
}

func TestRunnerItemPanicIsAnItemFailure(t *testing.T) {
	store := NewStore(bftest.CreateTestDB(t))
	runner := NewRunner(store, 1, testLogger())
	ctx := context.Background()

	job, err := store.Create(ctx, "tenant-a", "", "flyer.batch", 3)
	require.NoError(t, err)

	work := func(ctx context.Context, job *Job, index int) (ItemResult, error) {
		if index == 1 {
			panic("renderer blew up")
		}
		return ItemResult{ArtifactID: "ok"}, nil
	}

	runner.Run(ctx, job, work)

	final, err := store.Get(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CompletedItems)
	assert.Equal(t, 1, final.FailedItems)
}

func TestRunnerBoundedParallelismKeepsInvariants(t *testing.T) {
	store := NewStore(bftest.CreateTestDB(t))
	runner := NewRunner(store, 4, testLogger())
	ctx := context.Background()

	const total = 20
	job, err := store.Create(ctx, "tenant-a", "", "flyer.batch", total)
	require.NoError(t, err)

	work := func(ctx context.Context, job *Job, index int) (ItemResult, error) {
		time.Sleep(time.Millisecond)
		if index%5 == 0 {
			return ItemResult{}, errors.New("boom")
		}
		return ItemResult{ArtifactID: "x"}, nil
	}

	runner.Run(ctx, job, work)

	final, err := store.Get(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, final.Status)
	assert.Equal(t, total, final.AttemptedItems())
	assert.Equal(t, 4, final.FailedItems)
}

func TestRunnerFaultFailsWholeJob(t *testing.T) {
	store := NewStore(bftest.CreateTestDB(t))
	runner := NewRunner(store, 1, testLogger())

	job, err := store.Create(context.Background(), "tenant-a", "", "flyer.batch", 4)
	require.NoError(t, err)

	// Cancelling the runner's context makes the counter update fail outside
	// the per-item boundary - a fault in the runner's machinery, not the item.
	ctx, cancel := context.WithCancel(context.Background())
	work := func(ctx context.Context, job *Job, index int) (ItemResult, error) {
		if index == 1 {
			cancel()
		}
		return ItemResult{ArtifactID: "x"}, nil
	}

	runner.Run(ctx, job, work)

	final, err := store.Get(context.Background(), "tenant-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, final.Status)
	assert.Contains(t, final.Result, "error")
	// Progress recorded before the fault is not lost
	assert.Equal(t, 1, final.CompletedItems)
}

func TestRunnerAgainstAlreadyFinalizedJob(t *testing.T) {
	store := NewStore(bftest.CreateTestDB(t))
	runner := NewRunner(store, 1, testLogger())
	ctx := context.Background()

	job, err := store.Create(ctx, "tenant-a", "", "flyer.batch", 1)
	require.NoError(t, err)
	_, err = store.TransitionToProcessing(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	_, err = store.Finalize(ctx, "tenant-a", job.ID, JobStatusCompleted, Result{"artifacts": []interface{}{}})
	require.NoError(t, err)

	runner.Run(ctx, job, func(ctx context.Context, job *Job, index int) (ItemResult, error) {
		t.Fatal("work must not run for a sealed job")
		return ItemResult{}, nil
	})

	// First terminal write retained
	final, err := store.Get(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, final.Status)
	assert.Contains(t, final.Result, "artifacts")
}
