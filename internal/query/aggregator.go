// Package query fans a query out to the core, client, and general stores
// and fuses the results into one ranked context.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/responder"
	"github.com/fyrsmithlabs/retrievald/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrMissingQuery is returned when the query text is empty.
	ErrMissingQuery = errors.New("query required")

	// ErrMissingClient is returned when the client id is empty.
	ErrMissingClient = errors.New("client_id required")
)

const (
	// topKPerStore is the number of hits requested from each store.
	topKPerStore = 3

	// NoResultsText is returned when no store contributes any context.
	NoResultsText = "No relevant documents found."

	// fallbackText is returned when a configured responder fails.
	fallbackText = "Responder invocation failed. Please check responder configuration."

	// noSynthesisPrefix prefixes the raw context when no responder is
	// configured.
	noSynthesisPrefix = "Responder not configured. Returning combined context:\n\n"
)

// Resource is one deduplicated source document referenced by the answer.
type Resource struct {
	Source      string  `json:"source"`
	Filename    string  `json:"filename"`
	DocID       *string `json:"doc_id"`
	DownloadURL *string `json:"download_url"`
}

// Answer is the aggregated response to one query.
type Answer struct {
	Response    string
	CoreHits    int
	ClientHits  int
	GeneralHits int
	Resources   []Resource
	NoResults   bool
}

// Aggregator executes fanout queries. The read path takes no locks: a
// query may observe any consistent on-disk snapshot from a completed save.
type Aggregator struct {
	registry      *store.Registry
	responder     responder.Responder // nil means absent
	docServiceURL string
	logger        *zap.Logger
	metrics       *Metrics
}

// NewAggregator creates a query aggregator. A nil responder disables
// synthesis; answers then carry the raw combined context.
func NewAggregator(registry *store.Registry, rsp responder.Responder, docServiceURL string, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		registry:      registry,
		responder:     rsp,
		docServiceURL: docServiceURL,
		logger:        logger,
		metrics:       NewMetrics(),
	}
}

// Answer queries the core store, the client's own store, and the general
// store, in that fixed order, and fuses the hits into one response.
//
// Per-store failures other than corrupt persisted state degrade to empty
// results for that store. Responder failures degrade to a fixed fallback
// string. Corrupt stores fail the request; treating them as empty would
// silently drop history.
func (a *Aggregator) Answer(ctx context.Context, queryText, clientID string) (*Answer, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, ErrMissingQuery
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrMissingClient
	}

	start := time.Now()
	var ansErr error
	defer func() {
		a.metrics.RecordQuery(ctx, time.Since(start), ansErr)
	}()

	coreResults, err := a.queryStore(ctx, store.CoreTenant, queryText)
	if err != nil {
		ansErr = err
		return nil, ansErr
	}
	clientResults, err := a.queryStore(ctx, clientID, queryText)
	if err != nil {
		ansErr = err
		return nil, ansErr
	}
	generalResults, err := a.queryStore(ctx, store.GeneralTenant, queryText)
	if err != nil {
		ansErr = err
		return nil, ansErr
	}

	answer := &Answer{
		CoreHits:    len(coreResults),
		ClientHits:  len(clientResults),
		GeneralHits: len(generalResults),
	}

	combined := combineContext(coreResults, clientResults, generalResults)
	if strings.TrimSpace(combined) == "" {
		answer.Response = NoResultsText
		answer.NoResults = true
		return answer, nil
	}

	answer.Response = a.synthesize(ctx, queryText, combined)
	answer.Resources = a.collectResources(coreResults, clientResults, generalResults)
	return answer, nil
}

// queryStore queries one tenant's store. Embedding failures degrade to an
// empty result set; corrupt or inaccessible stores propagate.
func (a *Aggregator) queryStore(ctx context.Context, tenantKey, queryText string) ([]store.Result, error) {
	tenantStore, err := a.registry.GetStore(tenantKey)
	if err != nil {
		return nil, err
	}
	results, err := tenantStore.Query(ctx, queryText, topKPerStore)
	if err != nil {
		a.logger.Warn("store query degraded to empty results",
			zap.String("tenant", tenantKey),
			zap.Error(err))
		return nil, nil
	}
	return results, nil
}

// combineContext joins the hit texts with blank-line separators, in fixed
// core, client, general order.
func combineContext(resultSets ...[]store.Result) string {
	var parts []string
	for _, results := range resultSets {
		for _, result := range results {
			if result.Metadata != nil {
				parts = append(parts, result.Metadata.Text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// synthesize produces the response text: the responder's completion when
// one is configured, the raw context otherwise.
func (a *Aggregator) synthesize(ctx context.Context, queryText, combined string) string {
	if a.responder == nil {
		return noSynthesisPrefix + combined
	}

	prompt := fmt.Sprintf("Query: %s\nContext:\n%s\nProvide a clear, concise, factual answer below.", queryText, combined)
	text, err := a.responder.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warn("responder invocation failed", zap.Error(err))
		return fallbackText
	}
	return text
}

// resourceKey identifies one source document for deduplication.
type resourceKey struct {
	source   string
	filename string
	docID    string
	hasDocID bool
}

// collectResources walks all hits in fixed scan order and keeps the first
// occurrence of each (source, filename, doc id) key.
func (a *Aggregator) collectResources(resultSets ...[]store.Result) []Resource {
	seen := make(map[resourceKey]struct{})
	var resources []Resource
	for _, results := range resultSets {
		for _, result := range results {
			if result.Metadata == nil {
				continue
			}
			meta := result.Metadata
			key := resourceKey{source: meta.Source, filename: meta.Filename}
			if meta.DocID != nil {
				key.docID = *meta.DocID
				key.hasDocID = true
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			resources = append(resources, a.resourceFor(meta))
		}
	}
	return resources
}

func (a *Aggregator) resourceFor(meta *store.MetadataRecord) Resource {
	resource := Resource{
		Source:   meta.Source,
		Filename: meta.Filename,
		DocID:    meta.DocID,
	}
	if meta.DocID != nil && a.docServiceURL != "" {
		url := fmt.Sprintf("%s/documents/%s/download", strings.TrimRight(a.docServiceURL, "/"), *meta.DocID)
		resource.DownloadURL = &url
	}
	return resource
}

// TenantStats describes one tenant's store from a single load.
type TenantStats struct {
	Vectors   int
	Resources []Resource
}

// Stats derives the vector count and the deduplicated resources from one
// store load, so both numbers describe the same on-disk snapshot even
// while an upload is in flight.
func (a *Aggregator) Stats(tenantKey string) (*TenantStats, error) {
	tenantStore, err := a.registry.GetStore(tenantKey)
	if err != nil {
		return nil, err
	}
	return &TenantStats{
		Vectors:   tenantStore.Count(),
		Resources: a.dedupResources(tenantStore.Metadata()),
	}, nil
}

// ListResources returns the deduplicated resources known to one tenant's
// current metadata, in insertion order.
func (a *Aggregator) ListResources(tenantKey string) ([]Resource, error) {
	tenantStore, err := a.registry.GetStore(tenantKey)
	if err != nil {
		return nil, err
	}
	return a.dedupResources(tenantStore.Metadata()), nil
}

func (a *Aggregator) dedupResources(metadata []store.MetadataRecord) []Resource {
	seen := make(map[resourceKey]struct{})
	var resources []Resource
	for i := range metadata {
		meta := &metadata[i]
		key := resourceKey{source: meta.Source, filename: meta.Filename}
		if meta.DocID != nil {
			key.docID = *meta.DocID
			key.hasDocID = true
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		resources = append(resources, a.resourceFor(meta))
	}
	return resources
}
