package workflows

import (
	"context"
	"encoding/json"

	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/generation"
)

// JingleRequest is the single item of an audio.jingle job.
type JingleRequest struct {
	Brief           string `json:"brief"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Mood            string `json:"mood,omitempty"`
}

// Jingle composes a short brand audio jingle. Single-unit like video.promo.
type Jingle struct {
	gen  Generator
	sink ArtifactSink
}

func NewJingle(gen Generator, sink ArtifactSink) *Jingle {
	return &Jingle{gen: gen, sink: sink}
}

func (w *Jingle) Kind() string { return "audio.jingle" }

func (w *Jingle) Work(items []json.RawMessage) (engine.WorkFunc, error) {
	if len(items) != 1 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "audio.jingle takes exactly one item, got %d", len(items))
	}

	var req JingleRequest
	if err := json.Unmarshal(items[0], &req); err != nil {
		return nil, errors.Wrap(err, "jingle item")
	}
	if req.Brief == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "audio.jingle: brief is required")
	}

	return func(ctx context.Context, job *engine.Job, index int) (engine.ItemResult, error) {
		return generateItem(ctx, w.gen, w.sink, job, generation.Request{
			Kind: w.Kind(),
			Input: map[string]interface{}{
				"brief":            req.Brief,
				"duration_seconds": req.DurationSeconds,
				"mood":             req.Mood,
			},
		})
	}, nil
}
