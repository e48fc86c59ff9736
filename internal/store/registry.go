package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/docs"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"go.uber.org/zap"
)

// Reserved tenant keys.
const (
	// CoreTenant is the shared knowledge base queried on every request.
	CoreTenant = "core"
	// GeneralTenant is the shared pool stored alongside client stores.
	GeneralTenant = "general"
)

// ErrInvalidTenant is returned for tenant keys that cannot name a store
// directory.
var ErrInvalidTenant = errors.New("invalid tenant key")

// tenantKeyPattern keeps tenant keys usable as directory names and rules
// out path traversal.
var tenantKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Registry maps tenant keys to store locations and hands out one mutation
// lock per tenant. The lock map is guarded by the registry's own mutex,
// taken only for the brief create-or-fetch; per-tenant locks are never
// nested with each other, so cross-tenant deadlock is structurally
// impossible.
//
// Store handles are not cached: each GetStore re-reads from disk, so reads
// always observe the last completed save.
type Registry struct {
	coreDir    string
	clientsDir string
	chunker    docs.Chunker
	embedder   embeddings.Embedder
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates a registry rooted at the core and clients
// directories.
func NewRegistry(coreDir, clientsDir string, chunker docs.Chunker, embedder embeddings.Embedder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		coreDir:    coreDir,
		clientsDir: clientsDir,
		chunker:    chunker,
		embedder:   embedder,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// GetLock returns the single mutation lock for the tenant, creating it on
// first access. All callers observe the same lock instance for a given
// key.
func (r *Registry) GetLock(tenantKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[tenantKey]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[tenantKey] = lock
	}
	return lock
}

// loadRetries bounds re-reads of a store whose files look torn. A save
// renames the index and metadata files in sequence, so a lock-free reader
// can catch the gap between the two renames; re-reading observes the
// completed snapshot. Corruption at rest survives every retry and is
// surfaced.
const loadRetries = 3

// GetStore returns a fresh store handle for the tenant, loaded from disk
// when persisted state exists. Corrupt persisted state fails the call
// rather than being treated as an empty store.
func (r *Registry) GetStore(tenantKey string) (*TenantStore, error) {
	dir, err := r.storeDir(tenantKey)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		s := New(dir, r.chunker, r.embedder, r.logger.With(zap.String("tenant", tenantKey)))
		if !s.ExistsOnDisk() {
			r.logger.Debug("no persisted store for tenant, will build on first upload",
				zap.String("tenant", tenantKey))
			return s, nil
		}

		err := s.Load()
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrStoreCorrupt) || attempt == loadRetries {
			return nil, fmt.Errorf("loading store for tenant %s: %w", tenantKey, err)
		}
		r.logger.Warn("store load may have raced a save, retrying",
			zap.String("tenant", tenantKey),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(10 * time.Millisecond)
	}
}

// storeDir maps a tenant key to its persistence directory. The core store
// has its own root; every other tenant, the general pool included, lives
// under the clients root.
func (r *Registry) storeDir(tenantKey string) (string, error) {
	if !tenantKeyPattern.MatchString(tenantKey) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, tenantKey)
	}
	if tenantKey == CoreTenant {
		return r.coreDir, nil
	}
	return filepath.Join(r.clientsDir, tenantKey), nil
}
