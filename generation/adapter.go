// Package generation wraps calls to slow, externally-operated generation
// backends. The protocol every backend shares: submit a request, receive an
// opaque handle, poll the handle until it reports done, then extract the final
// payload. The Adapter layers a uniform poll/timeout/retry policy on top so
// every workflow (image, video, audio) shares one policy instead of
// re-deriving it.
package generation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/brandforge/config"
	"github.com/brandforge/brandforge/errors"
)

// Request is a generation request payload. The adapter does not interpret
// Input; workflows own its structure and the backend consumes it.
type Request struct {
	Kind  string                 `json:"kind"`
	Input map[string]interface{} `json:"input"`
}

// Poll is one observation of a remote operation handle.
type Poll struct {
	Done    bool
	Payload []byte // inline result, may be empty even when Done
}

// Backend is the boundary with a remote generation capability. Remote
// failures surface as errors (structured as *BackendError where possible);
// the Adapter owns classification and retry.
type Backend interface {
	// Submit sends a request and returns an operation handle.
	Submit(ctx context.Context, req Request) (string, error)

	// Poll reports whether the operation behind a handle has finished,
	// optionally carrying the result inline.
	Poll(ctx context.Context, handle string) (*Poll, error)

	// Fetch retrieves the final payload for a finished handle that did not
	// return its result inline.
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// Config holds the adapter's timing policy.
type Config struct {
	// PollInterval is the fixed delay between polls of a handle.
	PollInterval time.Duration

	// MaxPolls bounds the number of polls per attempt. Exhausting it is a
	// timeout failure, not a remote error.
	MaxPolls int

	// HardTimeout bounds the wall-clock time of one full submit+poll+extract
	// attempt, independent of the poll loop. MaxPolls alone does not bound
	// wall-clock time when a single call stalls on the network.
	HardTimeout time.Duration

	// RetryDelay is the fixed wait before the single retry of a retryable
	// failure.
	RetryDelay time.Duration
}

// ConfigFrom converts application settings into an adapter Config.
func ConfigFrom(gc config.GenerationConfig) Config {
	return Config{
		PollInterval: time.Duration(gc.PollIntervalMS) * time.Millisecond,
		MaxPolls:     gc.MaxPolls,
		HardTimeout:  time.Duration(gc.HardTimeoutSeconds) * time.Second,
		RetryDelay:   time.Duration(gc.RetryDelayMS) * time.Millisecond,
	}
}

// Result is the adapter's return contract. Expected failure modes never come
// back as Go errors: callers branch on OK and account for failures themselves
// (typically by incrementing the job's failed counter).
type Result struct {
	OK      bool
	Payload []byte
	Code    FailureCode
	Reason  string
}

// Adapter executes generation requests against a Backend with a uniform
// poll/timeout/retry policy.
type Adapter struct {
	backend Backend
	cfg     Config
	logger  *zap.SugaredLogger
}

// NewAdapter creates an adapter around a backend.
func NewAdapter(backend Backend, cfg Config, logger *zap.SugaredLogger) *Adapter {
	return &Adapter{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
	}
}

// Generate runs one generation request to completion: a full
// submit+poll+extract attempt, and on a retryable failure exactly one more
// full attempt after a fixed delay. A second failure is surfaced as-is;
// non-retryable failures are surfaced immediately.
func (a *Adapter) Generate(ctx context.Context, req Request) Result {
	payload, err := a.attempt(ctx, req)
	if err == nil {
		return Result{OK: true, Payload: payload}
	}

	code := Classify(err)
	if !code.Retryable() {
		a.logger.Warnw("Generation failed, not retryable",
			"kind", req.Kind,
			"code", code,
			"error", err,
		)
		return failure(code, err)
	}

	a.logger.Infow("Generation failed, retrying once",
		"kind", req.Kind,
		"code", code,
		"retry_delay", a.cfg.RetryDelay,
		"error", err,
	)
	select {
	case <-time.After(a.cfg.RetryDelay):
	case <-ctx.Done():
		return failure(FailureTimeout, errors.Wrap(ctx.Err(), "cancelled before retry"))
	}

	payload, err = a.attempt(ctx, req)
	if err == nil {
		return Result{OK: true, Payload: payload}
	}
	code = Classify(err)
	a.logger.Warnw("Generation retry failed",
		"kind", req.Kind,
		"code", code,
		"error", err,
	)
	return failure(code, err)
}

// attempt runs one full submit+poll+extract sequence under the hard timeout.
func (a *Adapter) attempt(ctx context.Context, req Request) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, a.cfg.HardTimeout)
	defer cancel()

	handle, err := a.backend.Submit(actx, req)
	if err != nil {
		return nil, errors.Wrap(err, "submit")
	}

	for polls := 0; polls < a.cfg.MaxPolls; polls++ {
		select {
		case <-actx.Done():
			return nil, errors.Wrap(actx.Err(), "generation attempt")
		case <-time.After(a.cfg.PollInterval):
		}

		status, err := a.backend.Poll(actx, handle)
		if err != nil {
			return nil, errors.Wrapf(err, "poll %d", polls+1)
		}
		if !status.Done {
			continue
		}
		if len(status.Payload) > 0 {
			return status.Payload, nil
		}
		payload, err := a.backend.Fetch(actx, handle)
		if err != nil {
			return nil, errors.Wrap(err, "fetch result")
		}
		return payload, nil
	}

	return nil, errors.Wrapf(errors.ErrTimeout, "handle %s not done after %d polls", handle, a.cfg.MaxPolls)
}

func failure(code FailureCode, err error) Result {
	return Result{
		OK:     false,
		Code:   code,
		Reason: err.Error(),
	}
}
