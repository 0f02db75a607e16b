package workflows

import (
	"context"
	"encoding/json"

	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/generation"
)

// FlyerItem is one flyer in a batch request.
type FlyerItem struct {
	Headline string `json:"headline"`
	Theme    string `json:"theme"`
	Format   string `json:"format,omitempty"` // e.g. "a4", "square", "story"
}

// FlyerBatch produces a batch of marketing flyers, one generation call per
// item. Partial failure is expected: a batch of 10 with 2 rejected items
// still completes with failedItems=2.
type FlyerBatch struct {
	gen  Generator
	sink ArtifactSink
}

func NewFlyerBatch(gen Generator, sink ArtifactSink) *FlyerBatch {
	return &FlyerBatch{gen: gen, sink: sink}
}

func (w *FlyerBatch) Kind() string { return "flyer.batch" }

func (w *FlyerBatch) Work(items []json.RawMessage) (engine.WorkFunc, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "flyer batch needs at least one item")
	}

	flyers := make([]FlyerItem, len(items))
	for i, raw := range items {
		if err := json.Unmarshal(raw, &flyers[i]); err != nil {
			return nil, errors.Wrapf(err, "flyer item %d", i)
		}
		if flyers[i].Headline == "" {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "flyer item %d: headline is required", i)
		}
	}

	return func(ctx context.Context, job *engine.Job, index int) (engine.ItemResult, error) {
		if index >= len(flyers) {
			return engine.ItemResult{}, errors.Newf("flyer index %d out of range", index)
		}
		item := flyers[index]
		return generateItem(ctx, w.gen, w.sink, job, generation.Request{
			Kind: w.Kind(),
			Input: map[string]interface{}{
				"headline": item.Headline,
				"theme":    item.Theme,
				"format":   item.Format,
			},
		})
	}, nil
}
