package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

// MemoryStore is an in-memory vector store using brute-force cosine search.
// Suitable for tests and single-node development without an external backend.
type MemoryStore struct {
	dimensions int
	mu         sync.RWMutex
	records    map[string]Record // vector id -> record
	order      []string          // insertion order, for stable ties
}

// NewMemoryStore creates an empty in-memory store with the given dimension.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions: dimensions,
		records:    make(map[string]Record),
	}
}

func (m *MemoryStore) Name() string    { return "memory" }
func (m *MemoryStore) Dimensions() int { return m.dimensions }

// Upsert stores records keyed by their deterministic vector id; re-upserting a
// (documentId, chunkId) pair replaces the previous entry.
func (m *MemoryStore) Upsert(ctx context.Context, records []Record) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(records))
	for i, rec := range records {
		if len(rec.Vector) != m.dimensions {
			return nil, fmt.Errorf("record %d: got %d dimensions, expected %d: %w",
				i, len(rec.Vector), m.dimensions, ErrDimensionMismatch)
		}
		id := VectorID(rec.DocumentID, rec.ChunkID)
		if _, exists := m.records[id]; !exists {
			m.order = append(m.order, id)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, rec.Vector)
		rec.Vector = vec
		m.records[id] = rec
		ids[i] = id
	}
	return ids, nil
}

// Search scans all records belonging to candidateDocIDs and returns the topK by
// descending cosine similarity. Equal scores keep insertion order.
func (m *MemoryStore) Search(ctx context.Context, query []float32, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query: got %d dimensions, expected %d: %w",
			len(query), m.dimensions, ErrDimensionMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}
	candidates := make(map[string]bool, len(candidateDocIDs))
	for _, id := range candidateDocIDs {
		candidates[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := make([]models.RetrievedChunk, 0)
	for _, id := range m.order {
		rec, ok := m.records[id]
		if !ok || !candidates[rec.DocumentID] {
			continue
		}
		hits = append(hits, models.RetrievedChunk{
			DocumentID: rec.DocumentID,
			ChunkID:    rec.ChunkID,
			Text:       rec.Text,
			Score:      clampScore(cosine(query, rec.Vector)),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteByDocument removes every vector of documentID and returns the count.
// Deleting a document with no vectors returns zero, not an error.
func (m *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	kept := m.order[:0]
	for _, id := range m.order {
		if rec, ok := m.records[id]; ok && rec.DocumentID == documentID {
			delete(m.records, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return deleted, nil
}

// Size returns the number of stored vectors.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error { return nil }

// cosine returns the cosine similarity of two equal-length vectors.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
