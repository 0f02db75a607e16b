package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorkflow struct {
	kind string
}

func (w *stubWorkflow) Kind() string { return w.kind }

func (w *stubWorkflow) Work(items []json.RawMessage) (WorkFunc, error) {
	return func(ctx context.Context, job *Job, index int) (ItemResult, error) {
		return ItemResult{ArtifactID: "stub"}, nil
	}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewWorkflowRegistry()
	wf := &stubWorkflow{kind: "flyer.batch"}
	reg.Register(wf)

	assert.True(t, reg.Has("flyer.batch"))
	assert.Same(t, wf, reg.Get("flyer.batch"))
	assert.Nil(t, reg.Get("nope"))
	assert.False(t, reg.Has("nope"))
}

func TestRegistryDuplicateKindPanics(t *testing.T) {
	reg := NewWorkflowRegistry()
	reg.Register(&stubWorkflow{kind: "video.promo"})

	require.Panics(t, func() {
		reg.Register(&stubWorkflow{kind: "video.promo"})
	})
}

func TestRegistryKinds(t *testing.T) {
	reg := NewWorkflowRegistry()
	reg.Register(&stubWorkflow{kind: "audio.jingle"})
	reg.Register(&stubWorkflow{kind: "mascot.image"})

	assert.ElementsMatch(t, []string{"audio.jingle", "mascot.image"}, reg.Kinds())
}
