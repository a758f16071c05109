package retriever

import (
	"context"
	"testing"

	"github.com/jenilsoni-ai/chatsphere/internal/embedding"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
	"github.com/jenilsoni-ai/chatsphere/internal/vectorstore"
)

func newTestRetriever(t *testing.T) (*Retriever, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore(16)
	embedder := embedding.NewMockEmbedder(16)
	r := New(embedder, func() vectorstore.VectorStore { return store })
	return r, store
}

func seed(t *testing.T, store *vectorstore.MemoryStore, docID string, texts ...string) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(16)
	records := make([]vectorstore.Record, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		records[i] = vectorstore.Record{
			DocumentID: docID,
			ChunkID:    docID + "_" + string(rune('0'+i)),
			Index:      i,
			Text:       text,
			Vector:     vec,
		}
	}
	if _, err := store.Upsert(context.Background(), records); err != nil {
		t.Fatal(err)
	}
}

func TestRetrieve_ExactMatchRanksFirst(t *testing.T) {
	r, store := newTestRetriever(t)
	seed(t, store, "d1", "the quick brown fox", "an entirely different passage", "yet more unrelated text")

	hits, err := r.Retrieve(context.Background(), "the quick brown fox", []string{"d1"}, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	// The mock embedder is deterministic: identical text embeds identically.
	if hits[0].Text != "the quick brown fox" {
		t.Errorf("top hit = %q (score %f)", hits[0].Text, hits[0].Score)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("exact match score = %f", hits[0].Score)
	}
}

func TestRetrieve_ScopedToCandidates(t *testing.T) {
	r, store := newTestRetriever(t)
	seed(t, store, "d1", "shared content")
	seed(t, store, "d2", "shared content")

	hits, err := r.Retrieve(context.Background(), "shared content", []string{"d2"}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, h := range hits {
		if h.DocumentID != "d2" {
			t.Errorf("hit from out-of-scope document: %+v", h)
		}
	}
}

func TestRetrieve_EmptyCandidates(t *testing.T) {
	r, store := newTestRetriever(t)
	seed(t, store, "d1", "something")

	hits, err := r.Retrieve(context.Background(), "something", nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits without candidates, got %d", len(hits))
	}
}

func TestFilterByScore(t *testing.T) {
	hits := []models.RetrievedChunk{
		{ChunkID: "a", Score: 0.9},
		{ChunkID: "b", Score: 0.6},
		{ChunkID: "c", Score: 0.59},
	}
	kept := FilterByScore(hits, 0.6)
	if len(kept) != 2 {
		t.Fatalf("kept %d", len(kept))
	}
	if kept[0].ChunkID != "a" || kept[1].ChunkID != "b" {
		t.Errorf("kept = %+v", kept)
	}
	if len(FilterByScore(hits, 0.95)) != 0 {
		t.Error("cutoff above all scores must keep nothing")
	}
}
