package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExists(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(full, []byte("model: gemini-2.0-flash\n"), 0o600))
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	ctx := context.Background()
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"present", full, true},
		{"empty file", empty, false},
		{"missing", filepath.Join(dir, "nope.yaml"), false},
		{"directory", dir, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Local{}.Exists(ctx, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://models/extractor/v2.yaml")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "extractor/v2.yaml", object)

	for _, bad := range []string{"models/v2.yaml", "gs://models", "gs://models/", "gs:///v2.yaml"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "v2.yaml", BaseName("gs://models/extractor/v2.yaml"))
	assert.Equal(t, "model.yaml", BaseName("/var/lib/alertledger/model.yaml"))
}

func TestResolverWithoutGCS(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Exists(context.Background(), "gs://models/v2.yaml")
	assert.Error(t, err)

	ok, err := r.Exists(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte("model: gemini-2.0-flash\ncontext_window: 4096\n"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", m.Model)
	assert.Equal(t, BackendGeminiAPI, m.Backend)
	assert.Equal(t, "v1", m.APIVersion)
	assert.Equal(t, 4096, m.ContextWindow)

	_, err = ParseManifest([]byte("backend: vertex\n"))
	assert.ErrorContains(t, err, "model is required")

	_, err = ParseManifest([]byte("model: x\nbackend: onnx\n"))
	assert.ErrorContains(t, err, "unsupported backend")
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = ParseManifest([]byte(":::"))
	assert.Error(t, err)
}

func TestReadManifest(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(p, []byte("model: gemini-2.0-flash\nbackend: vertex\nproject: ledger\nlocation: europe-west1\n"), 0o600))

	m, err := ReadManifest(context.Background(), NewResolver(nil), p)
	require.NoError(t, err)
	assert.Equal(t, BackendVertexAI, m.Backend)
	assert.Equal(t, "ledger", m.Project)
	assert.Equal(t, "europe-west1", m.Location)
}
