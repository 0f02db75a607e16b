package workflows

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/generation"
)

// fakeGenerator returns a scripted result per kind and records requests.
type fakeGenerator struct {
	requests []generation.Request
	result   generation.Result
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) generation.Result {
	g.requests = append(g.requests, req)
	return g.result
}

type memorySink struct {
	saved [][]byte
}

func (s *memorySink) Save(ctx context.Context, tenantID, kind string, payload []byte) (string, error) {
	s.saved = append(s.saved, payload)
	return "artifact-1", nil
}

func okGen(payload []byte) *fakeGenerator {
	return &fakeGenerator{result: generation.Result{OK: true, Payload: payload}}
}

func rawItems(t *testing.T, items ...interface{}) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		require.NoError(t, err)
		out[i] = raw
	}
	return out
}

func TestFlyerBatchWork(t *testing.T) {
	gen := okGen([]byte("png-bytes"))
	sink := &memorySink{}
	wf := NewFlyerBatch(gen, sink)

	work, err := wf.Work(rawItems(t,
		FlyerItem{Headline: "Summer Sale", Theme: "beach"},
		FlyerItem{Headline: "Grand Opening", Theme: "confetti", Format: "a4"},
	))
	require.NoError(t, err)

	job := &engine.Job{ID: "j1", TenantID: "tenant-a", Kind: wf.Kind()}
	res, err := work(context.Background(), job, 1)
	require.NoError(t, err)

	assert.Equal(t, "artifact-1", res.ArtifactID)
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "flyer.batch", gen.requests[0].Kind)
	assert.Equal(t, "Grand Opening", gen.requests[0].Input["headline"])
	assert.Equal(t, [][]byte{[]byte("png-bytes")}, sink.saved)
}

func TestFlyerBatchRejectsMissingHeadline(t *testing.T) {
	wf := NewFlyerBatch(okGen(nil), &memorySink{})

	_, err := wf.Work(rawItems(t, FlyerItem{Theme: "beach"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "headline is required")

	_, err = wf.Work(nil)
	require.Error(t, err)
}

func TestGenerationFailureBecomesItemError(t *testing.T) {
	gen := &fakeGenerator{result: generation.Result{
		OK:     false,
		Code:   generation.FailureContentBlocked,
		Reason: "rejected by safety filter",
	}}
	sink := &memorySink{}
	wf := NewMascotImage(gen, sink)

	work, err := wf.Work(rawItems(t, MascotItem{Prompt: "a friendly robot"}))
	require.NoError(t, err)

	job := &engine.Job{ID: "j1", TenantID: "tenant-a", Kind: wf.Kind()}
	_, err = work(context.Background(), job, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "content_blocked")
	assert.Empty(t, sink.saved, "failed generations are not stored")
}

func TestSingleUnitWorkflowsRequireExactlyOneItem(t *testing.T) {
	video := NewPromoVideo(okGen(nil), &memorySink{})
	jingle := NewJingle(okGen(nil), &memorySink{})

	_, err := video.Work(rawItems(t,
		PromoVideoRequest{Script: "a"},
		PromoVideoRequest{Script: "b"},
	))
	require.Error(t, err)

	_, err = jingle.Work(nil)
	require.Error(t, err)

	_, err = video.Work(rawItems(t, PromoVideoRequest{Script: "thirty seconds of summer"}))
	require.NoError(t, err)
	_, err = jingle.Work(rawItems(t, JingleRequest{Brief: "upbeat ukulele", DurationSeconds: 15}))
	require.NoError(t, err)
}

func TestRegisterAllCoversEveryKind(t *testing.T) {
	reg := engine.NewWorkflowRegistry()
	RegisterAll(reg, okGen(nil), &memorySink{})

	assert.ElementsMatch(t,
		[]string{"flyer.batch", "mascot.image", "video.promo", "audio.jingle"},
		reg.Kinds(),
	)
}

func TestFSArtifactSink(t *testing.T) {
	root := t.TempDir()
	sink := NewFSArtifactSink(root)

	id, err := sink.Save(context.Background(), "tenant-a", "mascot.image", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(id))

	data, err := os.ReadFile(filepath.Join(root, id))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = sink.Save(context.Background(), "", "mascot.image", nil)
	require.Error(t, err, "tenant is required")
}
