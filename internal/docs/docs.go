// Package docs loads raw documents and splits them into chunks for
// embedding.
package docs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

// Document is one loaded source document.
type Document struct {
	// Content is the full document text.
	Content string
	// Source is the path the document was loaded from.
	Source string
}

// Chunk is a contiguous span of text extracted from one source document.
// Chunks are the unit of embedding.
type Chunk struct {
	Text   string
	Source string
}

// LoadAll loads every regular file under dir as a text document.
// Unreadable files are skipped with a warning rather than failing the
// whole batch.
func LoadAll(ctx context.Context, dir string, logger *zap.Logger) ([]Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading document directory %s: %w", dir, err)
	}

	var documents []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		file, err := os.Open(path)
		if err != nil {
			logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
			continue
		}
		loaded, err := documentloaders.NewText(file).Load(ctx)
		file.Close()
		if err != nil {
			logger.Warn("skipping unparseable file", zap.String("path", path), zap.Error(err))
			continue
		}

		for _, doc := range loaded {
			documents = append(documents, Document{
				Content: doc.PageContent,
				Source:  path,
			})
		}
	}

	logger.Info("loaded documents", zap.String("dir", dir), zap.Int("count", len(documents)))
	return documents, nil
}

// Chunker splits documents into overlapping text chunks.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker with the given chunk size and overlap,
// both measured in characters.
func NewChunker(chunkSize, chunkOverlap int) Chunker {
	return Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Chunk splits each document, preserving the back-reference to its source.
// Chunks are returned in document order, and within one document in text
// order.
func (c Chunker) Chunk(documents []Document) ([]Chunk, error) {
	source := make([]schema.Document, 0, len(documents))
	for _, doc := range documents {
		source = append(source, schema.Document{
			PageContent: doc.Content,
			Metadata:    map[string]any{"source": doc.Source},
		})
	}

	split, err := textsplitter.SplitDocuments(c.splitter, source)
	if err != nil {
		return nil, fmt.Errorf("splitting documents: %w", err)
	}

	chunks := make([]Chunk, 0, len(split))
	for _, doc := range split {
		src, _ := doc.Metadata["source"].(string)
		chunks = append(chunks, Chunk{Text: doc.PageContent, Source: src})
	}
	return chunks, nil
}
