// Package vectorstore provides a uniform interface over interchangeable vector
// database backends and a factory for creating them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

var (
	// ErrUnavailable indicates the backend could not be reached or refused the
	// connection. Fatal to the calling operation, never silently swallowed.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrDimensionMismatch indicates the configured embedding dimension does not
	// match the backend collection. A configuration error, not retryable.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrMissingCredentials indicates the selected backend has no usable credentials.
	ErrMissingCredentials = errors.New("missing vector store credentials")
)

// Record is one embedded chunk to be stored, with its payload.
type Record struct {
	DocumentID string
	ChunkID    string
	Index      int
	Text       string
	Vector     []float32
}

// VectorStore is the contract every backend implements. Scores returned by
// Search are normalized to [0,1] so callers are backend-agnostic.
type VectorStore interface {
	// Upsert stores records and returns one vector id per record, in order.
	// Idempotent for a given (documentId, chunkId): re-upserting replaces.
	Upsert(ctx context.Context, records []Record) ([]string, error)
	// Search returns up to topK chunks belonging to candidateDocIDs, ordered by
	// descending score. Chunks of other documents are never returned.
	Search(ctx context.Context, query []float32, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error)
	// DeleteByDocument removes all vectors of a document and returns how many
	// were deleted. Zero or already-missing vectors are not an error.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Dimensions() int
	Name() string
	Close() error
}

// vectorIDNamespace makes vector ids deterministic per (documentId, chunkId), so
// re-upserting the same chunk replaces the previous point instead of duplicating it.
var vectorIDNamespace = uuid.MustParse("9fbd7b2a-4a4e-40c3-9a41-3a6d1c1d7e55")

// VectorID derives the stable vector-store key for a chunk.
func VectorID(documentID, chunkID string) string {
	return uuid.NewSHA1(vectorIDNamespace, []byte(documentID+":"+chunkID)).String()
}

// New creates the vector store selected by cfg. dimensions is the embedding
// dimension the collection must use; backends verify it on first contact and
// fail with ErrDimensionMismatch when the existing collection disagrees.
func New(cfg config.VectorStoreConfig, dimensions int) (VectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	switch cfg.Type {
	case "zilliz":
		if cfg.Zilliz.URI == "" || cfg.Zilliz.APIKey == "" {
			return nil, fmt.Errorf("zilliz: %w", ErrMissingCredentials)
		}
		return NewZillizStore(cfg.Zilliz, dimensions), nil
	case "qdrant":
		if cfg.Qdrant.URL == "" {
			return nil, fmt.Errorf("qdrant: %w", ErrMissingCredentials)
		}
		return NewQdrantStore(cfg.Qdrant, dimensions), nil
	case "memory", "":
		return NewMemoryStore(dimensions), nil
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: zilliz, qdrant, memory)", cfg.Type)
	}
}

// clampScore normalizes a backend-native cosine score into [0,1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
