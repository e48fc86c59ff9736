package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/retrievald/internal/docs"
	"github.com/fyrsmithlabs/retrievald/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbedder returns deterministic content-derived vectors.
type fakeEmbedder struct{}

func (fakeEmbedder) embed(text string) []float32 {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{sum / 1000, float32(len(text)) / 100, 1}
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.embed(text)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Registry) {
	t.Helper()
	base := t.TempDir()
	registry := store.NewRegistry(
		filepath.Join(base, "core"),
		filepath.Join(base, "clients"),
		docs.NewChunker(1000, 200),
		fakeEmbedder{},
		zap.NewNop(),
	)
	return NewOrchestrator(registry, zap.NewNop()), registry
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects empty file list", func(t *testing.T) {
		o, _ := newTestOrchestrator(t)

		_, err := o.Ingest(ctx, "acme", nil, nil)
		assert.ErrorIs(t, err, ErrNoFiles)
	})

	t.Run("builds the tenant store from uploaded files", func(t *testing.T) {
		o, registry := newTestOrchestrator(t)

		files := []File{
			{Name: "a.txt", Data: []byte("alpha content")},
			{Name: "b.txt", Data: []byte("beta content")},
		}
		result, err := o.Ingest(ctx, "acme", files, map[string]string{"a.txt": "D1"})
		require.NoError(t, err)
		assert.Equal(t, "acme", result.ClientID)
		assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, result.UploadedFiles)

		s, err := registry.GetStore("acme")
		require.NoError(t, err)
		require.Len(t, s.Metadata(), s.Count())

		byFilename := make(map[string]*string)
		for _, record := range s.Metadata() {
			byFilename[record.Filename] = record.DocID
		}
		require.Contains(t, byFilename, "a.txt")
		require.Contains(t, byFilename, "b.txt")
		require.NotNil(t, byFilename["a.txt"])
		assert.Equal(t, "D1", *byFilename["a.txt"])
		assert.Nil(t, byFilename["b.txt"])
	})

	t.Run("doc id keys given as paths are honored", func(t *testing.T) {
		o, registry := newTestOrchestrator(t)

		files := []File{{Name: "a.txt", Data: []byte("alpha content")}}
		_, err := o.Ingest(ctx, "acme", files, map[string]string{"uploads/a.txt": "D9"})
		require.NoError(t, err)

		s, err := registry.GetStore("acme")
		require.NoError(t, err)
		require.NotEmpty(t, s.Metadata())
		require.NotNil(t, s.Metadata()[0].DocID)
		assert.Equal(t, "D9", *s.Metadata()[0].DocID)
	})

	t.Run("uploaded file names are flattened to basenames", func(t *testing.T) {
		o, registry := newTestOrchestrator(t)

		files := []File{{Name: "../../evil.txt", Data: []byte("content")}}
		result, err := o.Ingest(ctx, "acme", files, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"evil.txt"}, result.UploadedFiles)

		s, err := registry.GetStore("acme")
		require.NoError(t, err)
		require.NotEmpty(t, s.Metadata())
		assert.Equal(t, "evil.txt", s.Metadata()[0].Filename)
	})

	t.Run("concurrent uploads to one tenant lose nothing", func(t *testing.T) {
		o, registry := newTestOrchestrator(t)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		batches := [][]File{
			{{Name: "a.txt", Data: []byte("first uploader content")}},
			{{Name: "b.txt", Data: []byte("second uploader content")}},
		}
		for i, batch := range batches {
			wg.Add(1)
			go func(i int, batch []File) {
				defer wg.Done()
				_, errs[i] = o.Ingest(ctx, "acme", batch, nil)
			}(i, batch)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		s, err := registry.GetStore("acme")
		require.NoError(t, err)
		require.Len(t, s.Metadata(), s.Count())

		filenames := make(map[string]bool)
		for _, record := range s.Metadata() {
			filenames[record.Filename] = true
		}
		assert.True(t, filenames["a.txt"], "first upload lost")
		assert.True(t, filenames["b.txt"], "second upload lost")
		assert.Equal(t, 2, s.Count(), "vector count must equal the sum of both uploads' chunks")
	})

	t.Run("uploads for different tenants stay isolated", func(t *testing.T) {
		o, registry := newTestOrchestrator(t)

		_, err := o.Ingest(ctx, "acme", []File{{Name: "a.txt", Data: []byte("acme content")}}, nil)
		require.NoError(t, err)

		other, err := registry.GetStore("other")
		require.NoError(t, err)
		assert.Equal(t, 0, other.Count())
		assert.False(t, other.ExistsOnDisk())
	})
}
