package workflows

import (
	"context"
	"encoding/json"

	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/generation"
)

// PromoVideoRequest is the single item of a video.promo job.
type PromoVideoRequest struct {
	Script          string `json:"script"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
}

// PromoVideo produces a short promotional video. Single-unit: the job has
// exactly one item, so its progress percent comes from the elapsed-time
// heuristic rather than item counts.
type PromoVideo struct {
	gen  Generator
	sink ArtifactSink
}

func NewPromoVideo(gen Generator, sink ArtifactSink) *PromoVideo {
	return &PromoVideo{gen: gen, sink: sink}
}

func (w *PromoVideo) Kind() string { return "video.promo" }

func (w *PromoVideo) Work(items []json.RawMessage) (engine.WorkFunc, error) {
	if len(items) != 1 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "video.promo takes exactly one item, got %d", len(items))
	}

	var req PromoVideoRequest
	if err := json.Unmarshal(items[0], &req); err != nil {
		return nil, errors.Wrap(err, "video item")
	}
	if req.Script == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "video.promo: script is required")
	}

	return func(ctx context.Context, job *engine.Job, index int) (engine.ItemResult, error) {
		return generateItem(ctx, w.gen, w.sink, job, generation.Request{
			Kind: w.Kind(),
			Input: map[string]interface{}{
				"script":           req.Script,
				"duration_seconds": req.DurationSeconds,
				"aspect_ratio":     req.AspectRatio,
			},
		})
	}, nil
}
