// Package store provides per-tenant vector stores and the registry that
// serializes mutation per tenant.
//
// A TenantStore pairs a flat vector index with an ordered metadata
// sequence. The record at position i describes the vector at internal id i;
// every operation preserves that positional correspondence, and Load
// refuses stores where it does not hold.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/retrievald/internal/docs"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"github.com/fyrsmithlabs/retrievald/internal/index"
	"go.uber.org/zap"
)

const (
	indexFile    = "index.gob"
	metadataFile = "metadata.json"
)

// ErrStoreCorrupt is returned when persisted store files are present but
// unreadable or inconsistent. Corrupt stores are never treated as empty;
// that would silently drop history.
var ErrStoreCorrupt = errors.New("store files corrupt")

// MetadataRecord describes one embedded chunk. Records sit at the same
// ordinal position their vector was appended at.
type MetadataRecord struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Filename string  `json:"filename"`
	DocID    *string `json:"doc_id"`
}

// Result is one query hit: the squared L2 distance and the joined metadata
// record. Metadata is nil only if the internal id falls outside the
// metadata sequence, which cannot happen while the positional invariant
// holds.
type Result struct {
	Distance float32
	Metadata *MetadataRecord
}

// TenantStore is one tenant's vector index plus metadata, persisted as two
// files in dir. Instances are cheap handles; the registry hands out a fresh
// one per access and a separate per-tenant lock serializes mutation.
type TenantStore struct {
	dir      string
	chunker  docs.Chunker
	embedder embeddings.Embedder
	logger   *zap.Logger

	index    *index.Flat
	metadata []MetadataRecord
}

// New creates an in-memory store handle for dir. Call Load to read any
// persisted state.
func New(dir string, chunker docs.Chunker, embedder embeddings.Embedder, logger *zap.Logger) *TenantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantStore{
		dir:      dir,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
		index:    index.NewFlat(logger),
	}
}

// Dir returns the store's persistence directory.
func (s *TenantStore) Dir() string { return s.dir }

// Count returns the number of stored vectors.
func (s *TenantStore) Count() int { return s.index.Count() }

// Metadata returns the store's metadata records in insertion order.
func (s *TenantStore) Metadata() []MetadataRecord { return s.metadata }

// ExistsOnDisk reports whether both persisted files are present.
func (s *TenantStore) ExistsOnDisk() bool {
	if _, err := os.Stat(filepath.Join(s.dir, indexFile)); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(s.dir, metadataFile)); err != nil {
		return false
	}
	return true
}

// BuildFromDocuments chunks and embeds documents, appends the vectors and
// their metadata records in chunk order, and persists the store. Building
// onto a non-empty store augments it: new chunks land after existing ones.
//
// The docIDs override maps a filename (or the caller's literal key) to an
// external document id recorded on each of that file's chunks.
//
// Zero documents, chunks, or embeddings is a warned no-op; the store is
// never left with an index written but metadata missing, or vice versa.
func (s *TenantStore) BuildFromDocuments(ctx context.Context, documents []docs.Document, docIDs map[string]string) error {
	if len(documents) == 0 {
		s.logger.Warn("no documents to build from, skipping", zap.String("dir", s.dir))
		return nil
	}

	chunks, err := s.chunker.Chunk(documents)
	if err != nil {
		return fmt.Errorf("chunking documents: %w", err)
	}
	if len(chunks) == 0 {
		s.logger.Warn("no chunks created, skipping build", zap.String("dir", s.dir))
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) == 0 {
		s.logger.Warn("no embeddings generated, skipping build", zap.String("dir", s.dir))
		return nil
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]MetadataRecord, len(chunks))
	for i, chunk := range chunks {
		filename := filepath.Base(chunk.Source)
		record := MetadataRecord{
			Text:     chunk.Text,
			Source:   chunk.Source,
			Filename: filename,
		}
		if id, ok := docIDs[filename]; ok {
			record.DocID = &id
		} else if id, ok := docIDs[chunk.Source]; ok {
			record.DocID = &id
		}
		records[i] = record
	}

	// Append validates every vector before mutating, so a dimension
	// mismatch leaves both index and metadata untouched.
	if err := s.index.Append(vectors); err != nil {
		return fmt.Errorf("appending vectors: %w", err)
	}
	s.metadata = append(s.metadata, records...)

	if err := s.Save(); err != nil {
		return err
	}

	s.logger.Info("store built",
		zap.String("dir", s.dir),
		zap.Int("documents", len(documents)),
		zap.Int("chunks", len(chunks)),
		zap.Int("total_vectors", s.index.Count()))
	return nil
}

// Save rewrites both persisted files from in-memory state. Each file is
// written via temp-file-and-rename; a save that fails midway leaves the
// previous on-disk snapshot readable.
func (s *TenantStore) Save() error {
	if s.index.Count() == 0 {
		s.logger.Warn("empty index, nothing to save", zap.String("dir", s.dir))
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	if err := s.index.WriteFile(filepath.Join(s.dir, indexFile)); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	if err := s.writeMetadata(); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}

	s.logger.Debug("store saved",
		zap.String("dir", s.dir),
		zap.Int("vectors", s.index.Count()))
	return nil
}

func (s *TenantStore) writeMetadata() error {
	tmp, err := os.CreateTemp(s.dir, ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp metadata file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(s.metadata); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp metadata file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting metadata file permissions: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, metadataFile))
}

// Load reads the persisted index and metadata into memory. Absent files
// are a warned no-op; present-but-unreadable files or an index/metadata
// length mismatch return ErrStoreCorrupt.
func (s *TenantStore) Load() error {
	if !s.ExistsOnDisk() {
		s.logger.Warn("no persisted store to load", zap.String("dir", s.dir))
		return nil
	}

	idx, err := index.ReadFile(filepath.Join(s.dir, indexFile), s.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	metaBytes, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if err != nil {
		return fmt.Errorf("%w: reading metadata: %v", ErrStoreCorrupt, err)
	}
	var metadata []MetadataRecord
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return fmt.Errorf("%w: decoding metadata: %v", ErrStoreCorrupt, err)
	}

	if len(metadata) != idx.Count() {
		return fmt.Errorf("%w: %d metadata records for %d vectors", ErrStoreCorrupt, len(metadata), idx.Count())
	}

	s.index = idx
	s.metadata = metadata
	s.logger.Debug("store loaded",
		zap.String("dir", s.dir),
		zap.Int("vectors", idx.Count()))
	return nil
}

// Query embeds the query text, searches the index, and joins each hit back
// to its metadata record by internal id. Results are ordered nearest
// first. An empty store returns no results.
func (s *TenantStore) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	if s.index.Count() == 0 {
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits := s.index.Search(vector, topK)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		result := Result{Distance: hit.Distance}
		if hit.ID >= 0 && hit.ID < len(s.metadata) {
			result.Metadata = &s.metadata[hit.ID]
		}
		results = append(results, result)
	}
	return results, nil
}
