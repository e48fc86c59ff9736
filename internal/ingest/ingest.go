// Package ingest drives document ingestion for a tenant: materializing
// uploaded files, loading and embedding them, and appending the result to
// the tenant's store under its mutation lock.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/docs"
	"github.com/fyrsmithlabs/retrievald/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoFiles is returned when an ingestion request carries no files.
var ErrNoFiles = errors.New("no files uploaded")

// File is one uploaded file.
type File struct {
	Name string
	Data []byte
}

// Result reports a completed ingestion.
type Result struct {
	ClientID      string
	UploadedFiles []string
}

// Orchestrator serializes per-tenant ingestion through the registry's
// locks. Uploads for different tenants proceed in parallel.
type Orchestrator struct {
	registry *store.Registry
	logger   *zap.Logger
	metrics  *Metrics
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(registry *store.Registry, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		logger:   logger,
		metrics:  NewMetrics(),
	}
}

// Ingest builds (or augments) the tenant's store from the uploaded files.
//
// The docIDs override maps an uploaded filename to an external document id;
// keys are tolerated as either bare filenames or paths, so each entry is
// re-keyed by its basename as well.
//
// The tenant's lock is held across the entire chunk, embed, index, and
// persist sequence: two concurrent uploads for the same tenant are fully
// serialized, the second waiting for the first's save to complete.
func (o *Orchestrator) Ingest(ctx context.Context, clientID string, files []File, docIDs map[string]string) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	ingestID := uuid.NewString()
	logger := o.logger.With(
		zap.String("ingest_id", ingestID),
		zap.String("client_id", clientID))

	start := time.Now()
	var ingErr error
	defer func() {
		o.metrics.RecordIngest(ctx, time.Since(start), len(files), ingErr)
	}()

	scratch, err := os.MkdirTemp("", "retrievald-ingest-")
	if err != nil {
		ingErr = fmt.Errorf("creating scratch directory: %w", err)
		return nil, ingErr
	}
	defer os.RemoveAll(scratch)

	uploaded := make([]string, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file.Name)
		if err := os.WriteFile(filepath.Join(scratch, name), file.Data, 0o600); err != nil {
			ingErr = fmt.Errorf("writing file %s: %w", name, err)
			return nil, ingErr
		}
		uploaded = append(uploaded, name)
	}
	logger.Info("files materialized", zap.Strings("files", uploaded))

	documents, err := docs.LoadAll(ctx, scratch, logger)
	if err != nil {
		ingErr = fmt.Errorf("loading documents: %w", err)
		return nil, ingErr
	}

	normalized := normalizeDocIDs(docIDs)

	lock := o.registry.GetLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	tenantStore, err := o.registry.GetStore(clientID)
	if err != nil {
		ingErr = err
		return nil, ingErr
	}
	if err := tenantStore.BuildFromDocuments(ctx, documents, normalized); err != nil {
		ingErr = fmt.Errorf("building store: %w", err)
		return nil, ingErr
	}

	logger.Info("ingestion complete",
		zap.Int("documents", len(documents)),
		zap.Int("total_vectors", tenantStore.Count()),
		zap.Duration("duration", time.Since(start)))

	return &Result{ClientID: clientID, UploadedFiles: uploaded}, nil
}

// normalizeDocIDs re-keys each override entry by both its literal key and
// its basename, tolerating callers that pass either a path or a bare
// filename.
func normalizeDocIDs(docIDs map[string]string) map[string]string {
	normalized := make(map[string]string, len(docIDs)*2)
	for key, id := range docIDs {
		normalized[key] = id
		normalized[filepath.Base(key)] = id
	}
	return normalized
}
