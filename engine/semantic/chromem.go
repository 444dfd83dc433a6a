package semantic

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

// MemoryStore keeps the collection in an embedded chromem-go database,
// optionally persisted to a directory.
type MemoryStore struct {
	db   *chromem.DB
	name string

	mu   sync.RWMutex
	coll *chromem.Collection
}

// NewMemoryStore opens the collection. An empty path keeps everything in memory.
func NewMemoryStore(path, collection string) (*MemoryStore, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("semantic: open chromem %s: %w", path, err)
		}
	}
	coll, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic: open collection %s: %w", collection, err)
	}
	return &MemoryStore{db: db, name: collection, coll: coll}, nil
}

// Collection returns the collection name.
func (m *MemoryStore) Collection() string { return m.name }

// Upsert appends records to the collection.
func (m *MemoryStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   r.Text,
			Metadata:  map[string]string{PayloadSource: r.Source},
			Embedding: r.Vector,
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return domain.Wrap(fmt.Sprintf("semantic: upsert %d documents", len(records)), domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Search returns at most topK results ordered by descending similarity.
func (m *MemoryStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(topK, m.coll.Count())
	if n <= 0 {
		return []SearchResult{}, nil
	}
	res, err := m.coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, domain.Wrap("semantic: search", domain.ErrStoreUnavailable, err)
	}
	out := make([]SearchResult, len(res))
	for i, r := range res {
		out[i] = SearchResult{
			ID:     r.ID,
			Score:  r.Similarity,
			Text:   r.Content,
			Source: r.Metadata[PayloadSource],
		}
	}
	return out, nil
}

// ResetCollection drops the collection and recreates it empty.
func (m *MemoryStore) ResetCollection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(m.name); err != nil {
		return domain.Wrap("semantic: delete collection "+m.name, domain.ErrStoreUnavailable, err)
	}
	coll, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return domain.Wrap("semantic: create collection "+m.name, domain.ErrStoreUnavailable, err)
	}
	m.coll = coll
	return nil
}

// Count returns the number of stored documents.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coll.Count(), nil
}

// Close is a no-op; persistent databases write through on every change.
func (m *MemoryStore) Close() error { return nil }
