package workflows

import (
	"context"
	"encoding/json"

	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/generation"
)

// MascotItem describes one mascot rendering.
type MascotItem struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}

// MascotImage renders brand mascot images. Usually a small batch of style
// variations over the same prompt.
type MascotImage struct {
	gen  Generator
	sink ArtifactSink
}

func NewMascotImage(gen Generator, sink ArtifactSink) *MascotImage {
	return &MascotImage{gen: gen, sink: sink}
}

func (w *MascotImage) Kind() string { return "mascot.image" }

func (w *MascotImage) Work(items []json.RawMessage) (engine.WorkFunc, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "mascot request needs at least one item")
	}

	mascots := make([]MascotItem, len(items))
	for i, raw := range items {
		if err := json.Unmarshal(raw, &mascots[i]); err != nil {
			return nil, errors.Wrapf(err, "mascot item %d", i)
		}
		if mascots[i].Prompt == "" {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "mascot item %d: prompt is required", i)
		}
	}

	return func(ctx context.Context, job *engine.Job, index int) (engine.ItemResult, error) {
		if index >= len(mascots) {
			return engine.ItemResult{}, errors.Newf("mascot index %d out of range", index)
		}
		item := mascots[index]
		return generateItem(ctx, w.gen, w.sink, job, generation.Request{
			Kind: w.Kind(),
			Input: map[string]interface{}{
				"prompt": item.Prompt,
				"style":  item.Style,
			},
		})
	}, nil
}
