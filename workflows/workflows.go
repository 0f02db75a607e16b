// Package workflows holds the tool modules: one Workflow per generation kind,
// each translating submitted item payloads into generation requests and
// adapter results into stored artifacts. The engine routes by kind without
// knowing what a flyer or a jingle is.
package workflows

import (
	"context"

	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/generation"
)

// Generator is the slice of the generation adapter workflows consume.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) generation.Result
}

// ArtifactSink persists a produced payload and returns its artifact id.
// Artifact storage proper lives outside the engine; this is its boundary.
type ArtifactSink interface {
	Save(ctx context.Context, tenantID, kind string, payload []byte) (string, error)
}

// RegisterAll registers every built-in workflow on the registry.
func RegisterAll(reg *engine.WorkflowRegistry, gen Generator, sink ArtifactSink) {
	reg.Register(NewFlyerBatch(gen, sink))
	reg.Register(NewMascotImage(gen, sink))
	reg.Register(NewPromoVideo(gen, sink))
	reg.Register(NewJingle(gen, sink))
}

// generateItem runs one generation request and stores the result. An adapter
// failure (Result.OK=false) becomes an item error so the runner counts it as
// a failed item without aborting the batch.
func generateItem(ctx context.Context, gen Generator, sink ArtifactSink, job *engine.Job, req generation.Request) (engine.ItemResult, error) {
	res := gen.Generate(ctx, req)
	if !res.OK {
		return engine.ItemResult{}, errors.Newf("generation failed (%s): %s", res.Code, res.Reason)
	}

	artifactID, err := sink.Save(ctx, job.TenantID, req.Kind, res.Payload)
	if err != nil {
		return engine.ItemResult{}, errors.Wrap(err, "store artifact")
	}
	return engine.ItemResult{
		ArtifactID: artifactID,
		Detail: map[string]interface{}{
			"bytes": len(res.Payload),
		},
	}, nil
}
