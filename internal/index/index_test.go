package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppend(t *testing.T) {
	t.Run("first append fixes dimension", func(t *testing.T) {
		f := NewFlat(zap.NewNop())

		err := f.Append([][]float32{{1, 2, 3}, {4, 5, 6}})
		require.NoError(t, err)
		assert.Equal(t, 3, f.Dimension())
		assert.Equal(t, 2, f.Count())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		f := NewFlat(zap.NewNop())

		err := f.Append(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, f.Count())
		assert.Equal(t, 0, f.Dimension())
	})

	t.Run("dimension mismatch does not corrupt state", func(t *testing.T) {
		f := NewFlat(zap.NewNop())
		require.NoError(t, f.Append([][]float32{{1, 2, 3}}))

		err := f.Append([][]float32{{4, 5, 6}, {7, 8}})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, 1, f.Count(), "failed append must not add any vectors")
		assert.Equal(t, 3, f.Dimension())
	})

	t.Run("mismatch within first batch rejected", func(t *testing.T) {
		f := NewFlat(zap.NewNop())

		err := f.Append([][]float32{{1, 2}, {3}})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, 0, f.Count())
		assert.Equal(t, 0, f.Dimension())
	})
}

func TestSearch(t *testing.T) {
	newIndex := func(t *testing.T) *Flat {
		t.Helper()
		f := NewFlat(zap.NewNop())
		require.NoError(t, f.Append([][]float32{
			{0, 0}, // id 0, distance 0 from origin
			{3, 4}, // id 1, distance 25
			{1, 1}, // id 2, distance 2
		}))
		return f
	}

	t.Run("orders hits by ascending distance", func(t *testing.T) {
		f := newIndex(t)

		hits := f.Search([]float32{0, 0}, 3)
		require.Len(t, hits, 3)
		assert.Equal(t, 0, hits[0].ID)
		assert.Equal(t, 2, hits[1].ID)
		assert.Equal(t, 1, hits[2].ID)
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-6)
		assert.InDelta(t, 2.0, hits[1].Distance, 1e-6)
		assert.InDelta(t, 25.0, hits[2].Distance, 1e-6)
	})

	t.Run("returns fewer than k when index is small", func(t *testing.T) {
		f := newIndex(t)

		hits := f.Search([]float32{0, 0}, 10)
		assert.Len(t, hits, 3)
	})

	t.Run("empty index returns no hits", func(t *testing.T) {
		f := NewFlat(zap.NewNop())
		assert.Empty(t, f.Search([]float32{0, 0}, 3))
	})

	t.Run("wrong query dimension returns no hits", func(t *testing.T) {
		f := newIndex(t)
		assert.Empty(t, f.Search([]float32{0, 0, 0}, 3))
	})

	t.Run("non-positive k returns no hits", func(t *testing.T) {
		f := newIndex(t)
		assert.Empty(t, f.Search([]float32{0, 0}, 0))
	})
}

func TestPersistence(t *testing.T) {
	t.Run("write then read reproduces the index", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.gob")

		f := NewFlat(zap.NewNop())
		require.NoError(t, f.Append([][]float32{{1, 2}, {3, 4}}))
		require.NoError(t, f.WriteFile(path))

		loaded, err := ReadFile(path, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, f.Count(), loaded.Count())
		assert.Equal(t, f.Dimension(), loaded.Dimension())

		hits := loaded.Search([]float32{1, 2}, 2)
		require.Len(t, hits, 2)
		assert.Equal(t, 0, hits[0].ID)
	})

	t.Run("garbage file fails to load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.gob")
		require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o600))

		_, err := ReadFile(path, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("missing file fails to load", func(t *testing.T) {
		_, err := ReadFile(filepath.Join(t.TempDir(), "absent.gob"), zap.NewNop())
		assert.Error(t, err)
	})
}
