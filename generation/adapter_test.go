package generation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBackend scripts one backend behavior per test. Counters track how many
// attempts the adapter actually made.
type fakeBackend struct {
	submits int32
	polls   int32
	fetches int32

	submitErr   error
	submitErrs  int32 // fail this many submits, then succeed
	doneAfter   int32 // polls before Done=true (per attempt, approximated globally)
	pollErr     error
	inline      []byte
	fetched     []byte
	pollDelay   time.Duration
	neverDone   bool
}

func (f *fakeBackend) Submit(ctx context.Context, req Request) (string, error) {
	n := atomic.AddInt32(&f.submits, 1)
	if f.submitErr != nil && n <= f.submitErrs {
		return "", f.submitErr
	}
	return "handle-1", nil
}

func (f *fakeBackend) Poll(ctx context.Context, handle string) (*Poll, error) {
	n := atomic.AddInt32(&f.polls, 1)
	if f.pollDelay > 0 {
		select {
		case <-time.After(f.pollDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.neverDone || n <= f.doneAfter {
		return &Poll{Done: false}, nil
	}
	return &Poll{Done: true, Payload: f.inline}, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, handle string) ([]byte, error) {
	atomic.AddInt32(&f.fetches, 1)
	return f.fetched, nil
}

func fastConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		MaxPolls:     10,
		HardTimeout:  time.Second,
		RetryDelay:   time.Millisecond,
	}
}

func newTestAdapter(b Backend, cfg Config) *Adapter {
	return NewAdapter(b, cfg, zap.NewNop().Sugar())
}

func TestGenerateSuccessInlinePayload(t *testing.T) {
	backend := &fakeBackend{doneAfter: 2, inline: []byte("artifact-bytes")}
	adapter := newTestAdapter(backend, fastConfig())

	res := adapter.Generate(context.Background(), Request{Kind: "mascot.image"})

	require.True(t, res.OK)
	assert.Equal(t, []byte("artifact-bytes"), res.Payload)
	assert.EqualValues(t, 1, backend.submits, "no retry on success")
	assert.EqualValues(t, 0, backend.fetches, "inline payload skips fetch")
}

func TestGenerateFetchesWhenNotInline(t *testing.T) {
	backend := &fakeBackend{fetched: []byte("fetched-bytes")}
	adapter := newTestAdapter(backend, fastConfig())

	res := adapter.Generate(context.Background(), Request{Kind: "video.promo"})

	require.True(t, res.OK)
	assert.Equal(t, []byte("fetched-bytes"), res.Payload)
	assert.EqualValues(t, 1, backend.fetches)
}

func TestGeneratePollExhaustionIsTimeoutWithOneRetry(t *testing.T) {
	backend := &fakeBackend{neverDone: true}
	adapter := newTestAdapter(backend, fastConfig())

	res := adapter.Generate(context.Background(), Request{Kind: "video.promo"})

	require.False(t, res.OK)
	assert.Equal(t, FailureTimeout, res.Code)
	assert.Contains(t, res.Reason, "not done after 10 polls")
	assert.EqualValues(t, 2, backend.submits, "exactly one retry")
}

func TestGenerateHardTimeoutBoundsAttempt(t *testing.T) {
	// Each poll stalls 500ms and the handle is never done, so a full poll
	// loop would take ~5s per attempt. The 50ms hard timeout must win.
	backend := &fakeBackend{neverDone: true, pollDelay: 500 * time.Millisecond}
	cfg := fastConfig()
	cfg.HardTimeout = 50 * time.Millisecond
	adapter := newTestAdapter(backend, cfg)

	start := time.Now()
	res := adapter.Generate(context.Background(), Request{Kind: "video.promo"})
	elapsed := time.Since(start)

	require.False(t, res.OK)
	assert.Equal(t, FailureTimeout, res.Code)
	// Two attempts (timeout is retryable) plus slack, still nowhere near a
	// full poll loop.
	assert.Less(t, elapsed, time.Second)
}

func TestGenerateNonRetryableFailsImmediately(t *testing.T) {
	backend := &fakeBackend{pollErr: &BackendError{Code: "content_blocked", Message: "safety rejection"}}
	adapter := newTestAdapter(backend, fastConfig())

	res := adapter.Generate(context.Background(), Request{Kind: "flyer.batch"})

	require.False(t, res.OK)
	assert.Equal(t, FailureContentBlocked, res.Code)
	assert.Contains(t, res.Reason, "safety rejection")
	assert.EqualValues(t, 1, backend.submits, "no retry for non-retryable failures")
}

func TestGenerateRetryableFailureRecoversOnRetry(t *testing.T) {
	backend := &fakeBackend{
		submitErr:  &BackendError{Status: 503, Message: "maintenance"},
		submitErrs: 1,
		inline:     []byte("ok"),
	}
	adapter := newTestAdapter(backend, fastConfig())

	res := adapter.Generate(context.Background(), Request{Kind: "audio.jingle"})

	require.True(t, res.OK)
	assert.Equal(t, []byte("ok"), res.Payload)
	assert.EqualValues(t, 2, backend.submits)
}

func TestGenerateSecondFailureSurfacedAsIs(t *testing.T) {
	backend := &fakeBackend{
		submitErr:  &BackendError{Status: 429, Message: "slow down"},
		submitErrs: 99,
	}
	adapter := newTestAdapter(backend, fastConfig())

	res := adapter.Generate(context.Background(), Request{Kind: "audio.jingle"})

	require.False(t, res.OK)
	assert.Equal(t, FailureRateLimited, res.Code)
	assert.EqualValues(t, 2, backend.submits, "one retry, then surfaced")
}
