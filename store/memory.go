package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"taxrag/types"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory DBStorer with the same visibility and
// ordering semantics as the Postgres store. Used in tests and for local
// development without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[uuid.UUID]types.Document
	chunks map[uuid.UUID][]types.Chunk // keyed by doc id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[uuid.UUID]types.Document),
		chunks: make(map[uuid.UUID][]types.Chunk),
	}
}

func (m *MemoryStore) SaveDocument(_ context.Context, doc types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.docs[doc.ID]; ok {
		doc.Version = prev.Version + 1
		doc.CreatedAt = prev.CreatedAt
	}
	doc.Published = false
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryStore) PublishDocument(_ context.Context, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Published = true
	m.docs[docID] = doc
	return nil
}

func (m *MemoryStore) GetDocumentByID(_ context.Context, docID uuid.UUID) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, docID)
	delete(m.chunks, docID)
	return nil
}

func (m *MemoryStore) DeleteChunksByDocID(_ context.Context, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, docID)
	return nil
}

func (m *MemoryStore) SaveChunk(_ context.Context, c types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c.DocID] = append(m.chunks[c.DocID], c)
	return nil
}

func (m *MemoryStore) Search(_ context.Context, queryVec []float32, opts SearchOptions) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if opts.Limit <= 0 {
		opts.Limit = types.MaxResultsCap
	}

	collections := toSet(opts.Collections)
	countries := toSet(opts.Countries)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Chunk
	for docID, chunks := range m.chunks {
		doc, ok := m.docs[docID]
		if !ok || !doc.Published {
			continue
		}
		if collections != nil {
			if _, ok := collections[doc.Collection]; !ok {
				continue
			}
		}
		for _, c := range chunks {
			if countries != nil {
				if _, ok := countries[c.Country]; !ok {
					continue
				}
			}
			if len(c.Embedding) != len(queryVec) {
				continue
			}
			c.Similarity = cosine(queryVec, c.Embedding)
			c.IngestedAt = doc.CreatedAt
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		return out[i].Position < out[j].Position
	})

	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListCollections(_ context.Context) ([]types.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byName := make(map[string]*types.Collection)
	for docID, doc := range m.docs {
		if !doc.Published {
			continue
		}
		col, ok := byName[doc.Collection]
		if !ok {
			col = &types.Collection{
				Name:           doc.Collection,
				EmbeddingModel: doc.EmbeddingModel,
			}
			byName[doc.Collection] = col
		}
		for _, c := range m.chunks[docID] {
			col.ChunkCount++
			col.SizeBytes += len(c.Content)
		}
		if doc.UpdatedAt.After(col.UpdatedAt) {
			col.UpdatedAt = doc.UpdatedAt
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]types.Collection, 0, len(names))
	for _, name := range names {
		cols = append(cols, *byName[name])
	}
	return cols, nil
}

func (m *MemoryStore) Stats(_ context.Context) (*types.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &types.StoreStats{}
	countries := make(map[string]struct{})
	topics := make(map[string]struct{})
	for docID, doc := range m.docs {
		if !doc.Published {
			continue
		}
		chunks := m.chunks[docID]
		if len(chunks) > 0 {
			stats.UniqueDocuments++
		}
		for _, c := range chunks {
			stats.TotalChunks++
			if c.Country != "unknown" {
				countries[c.Country] = struct{}{}
			}
			if c.Topic != "unknown" {
				topics[c.Topic] = struct{}{}
			}
		}
	}
	stats.CountriesCovered = len(countries)
	stats.TopicsCovered = len(topics)
	return stats, nil
}

// SeedDocument inserts a published document with its chunks in one call.
func (m *MemoryStore) SeedDocument(doc types.Document, chunks []types.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.Published = true
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	m.docs[doc.ID] = doc
	m.chunks[doc.ID] = append([]types.Chunk(nil), chunks...)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
