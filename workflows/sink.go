package workflows

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/brandforge/brandforge/errors"
)

// kindExtensions maps generation kinds to file extensions for stored
// artifacts. Unknown kinds fall back to .bin.
var kindExtensions = map[string]string{
	"flyer.batch":  ".png",
	"mascot.image": ".png",
	"video.promo":  ".mp4",
	"audio.jingle": ".mp3",
}

// FSArtifactSink stores artifacts on the local filesystem under
// root/<tenant>/<kind>/<uuid><ext>. The returned artifact id is the path
// relative to root.
type FSArtifactSink struct {
	root string
}

// NewFSArtifactSink creates a filesystem sink rooted at dir.
func NewFSArtifactSink(root string) *FSArtifactSink {
	return &FSArtifactSink{root: root}
}

func (s *FSArtifactSink) Save(ctx context.Context, tenantID, kind string, payload []byte) (string, error) {
	if tenantID == "" {
		return "", errors.New("tenant ID is required")
	}

	ext, ok := kindExtensions[kind]
	if !ok {
		ext = ".bin"
	}

	rel := filepath.Join(tenantID, kind, uuid.NewString()+ext)
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "create artifact directory")
	}
	if err := os.WriteFile(full, payload, 0o644); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", rel)
	}
	return rel, nil
}
