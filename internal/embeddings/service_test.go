package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbedServer fakes a TEI endpoint returning one fixed vector per input.
func newEmbedServer(t *testing.T, status int) (*httptest.Server, *[]embedRequest) {
	t.Helper()
	var requests []embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		count := 1
		if inputs, ok := req.Inputs.([]any); ok {
			count = len(inputs)
		}
		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = []float32{float32(i), 0.5, 1}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestNewService(t *testing.T) {
	_, err := NewService(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	service, err := NewService(Config{BaseURL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.NotNil(t, service)
}

func TestEmbedDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("returns one vector per text", func(t *testing.T) {
		server, requests := newEmbedServer(t, http.StatusOK)
		service, err := NewService(Config{BaseURL: server.URL})
		require.NoError(t, err)

		vectors, err := service.EmbedDocuments(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{0, 0.5, 1}, vectors[0])

		require.Len(t, *requests, 1)
		assert.True(t, (*requests)[0].Truncate)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		server, _ := newEmbedServer(t, http.StatusOK)
		service, err := NewService(Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = service.EmbedDocuments(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("maps upstream errors", func(t *testing.T) {
		server, _ := newEmbedServer(t, http.StatusInternalServerError)
		service, err := NewService(Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = service.EmbedDocuments(ctx, []string{"alpha"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})
}

func TestEmbedQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the single vector", func(t *testing.T) {
		server, _ := newEmbedServer(t, http.StatusOK)
		service, err := NewService(Config{BaseURL: server.URL})
		require.NoError(t, err)

		vector, err := service.EmbedQuery(ctx, "what is up")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0.5, 1}, vector)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		server, _ := newEmbedServer(t, http.StatusOK)
		service, err := NewService(Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = service.EmbedQuery(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
}
