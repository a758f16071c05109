// Package retriever embeds chat queries and finds the most similar chunks
// among a caller-scoped set of documents.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jenilsoni-ai/chatsphere/internal/embedding"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
	"github.com/jenilsoni-ai/chatsphere/internal/vectorstore"
)

// StoreProvider returns the currently active vector store.
type StoreProvider func() vectorstore.VectorStore

// Retriever embeds a query and searches the active vector store, restricted
// to the given candidate documents.
type Retriever struct {
	embedder embedding.Embedder
	stores   StoreProvider
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets a logger for retrieval events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New creates a retriever.
func New(embedder embedding.Embedder, stores StoreProvider, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		stores:   stores,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK chunks from candidateDocIDs ranked by descending
// similarity to query. An empty candidate set short-circuits to no results.
func (r *Retriever) Retrieve(ctx context.Context, query string, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error) {
	if len(candidateDocIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.stores().Search(ctx, vector, candidateDocIDs, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	r.logger.Debug("retrieved chunks",
		zap.Int("candidates", len(candidateDocIDs)),
		zap.Int("hits", len(hits)))
	return hits, nil
}

// FilterByScore keeps hits scoring at or above cutoff, preserving order.
func FilterByScore(hits []models.RetrievedChunk, cutoff float64) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score >= cutoff {
			out = append(out, h)
		}
	}
	return out
}
