package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/llm"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

type stubRetriever struct {
	hits []models.RetrievedChunk
	err  error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error) {
	return s.hits, s.err
}

func testConfig() config.RAGConfig {
	return config.RAGConfig{
		TopK:             5,
		SimilarityCutoff: 0.6,
		Instructions:     "You are a support assistant.",
	}
}

func TestQuery_NoDocuments(t *testing.T) {
	mock := llm.NewMockClient("plain answer")
	engine := New(&stubRetriever{}, mock, testConfig())

	answer := engine.Query(context.Background(), Request{Message: "hi"})
	if answer.Status != models.RAGNoDocuments {
		t.Errorf("status = %s", answer.Status)
	}
	if answer.Response != "plain answer" {
		t.Errorf("response = %q", answer.Response)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %+v", answer.Sources)
	}
	if len(mock.Calls) != 1 || !strings.Contains(mock.Calls[0].System, "general knowledge") {
		t.Errorf("ungrounded system prompt not used: %+v", mock.Calls)
	}
}

func TestQuery_Success(t *testing.T) {
	r := &stubRetriever{hits: []models.RetrievedChunk{
		{DocumentID: "d1", ChunkID: "d1_0", Text: "refunds take 30 days", Score: 0.91},
		{DocumentID: "d1", ChunkID: "d1_3", Text: "shipping is free", Score: 0.71},
		{DocumentID: "d2", ChunkID: "d2_1", Text: "unrelated", Score: 0.40},
	}}
	mock := llm.NewMockClient("grounded answer")
	engine := New(r, mock, testConfig())

	answer := engine.Query(context.Background(), Request{
		Message:     "how long do refunds take?",
		DocumentIDs: []string{"d1", "d2"},
	})
	if answer.Status != models.RAGSuccess {
		t.Fatalf("status = %s", answer.Status)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("sources = %+v", answer.Sources)
	}
	if answer.Sources[0].ChunkID != "d1_0" || answer.Sources[0].Score != 0.91 {
		t.Errorf("top source = %+v", answer.Sources[0])
	}
	for i := 1; i < len(answer.Sources); i++ {
		if answer.Sources[i].Score > answer.Sources[i-1].Score {
			t.Error("sources not sorted by descending score")
		}
	}
	call := mock.Calls[0]
	if !strings.Contains(call.Message, "refunds take 30 days") {
		t.Error("grounded prompt missing retrieved context")
	}
	if strings.Contains(call.Message, "unrelated") {
		t.Error("below-cutoff chunk leaked into prompt")
	}
	if !strings.Contains(call.System, "ONLY the provided context") {
		t.Errorf("system prompt = %q", call.System)
	}
	if !strings.Contains(call.System, "support assistant") {
		t.Errorf("configured instructions missing: %q", call.System)
	}
}

func TestQuery_NoContextFound(t *testing.T) {
	r := &stubRetriever{hits: []models.RetrievedChunk{
		{DocumentID: "d1", ChunkID: "d1_0", Text: "irrelevant", Score: 0.2},
	}}
	mock := llm.NewMockClient("best effort answer")
	engine := New(r, mock, testConfig())

	answer := engine.Query(context.Background(), Request{
		Message:     "question",
		DocumentIDs: []string{"d1"},
	})
	if answer.Status != models.RAGNoContext {
		t.Fatalf("status = %s", answer.Status)
	}
	if !strings.HasPrefix(answer.Response, "I couldn't find specific information") {
		t.Errorf("response not prefixed: %q", answer.Response)
	}
	if !strings.HasSuffix(answer.Response, "best effort answer") {
		t.Errorf("response = %q", answer.Response)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %+v", answer.Sources)
	}
}

func TestQuery_RetrievalError(t *testing.T) {
	r := &stubRetriever{err: errors.New("vector store unavailable")}
	mock := llm.NewMockClient("degraded answer")
	engine := New(r, mock, testConfig())

	answer := engine.Query(context.Background(), Request{
		Message:     "question",
		DocumentIDs: []string{"d1"},
	})
	// Retrieval failure is never hidden behind a fallback status.
	if answer.Status != models.RAGError {
		t.Errorf("status = %s", answer.Status)
	}
	if answer.Response != "degraded answer" {
		t.Errorf("response = %q", answer.Response)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %+v", answer.Sources)
	}
}

func TestQuery_GroundedCompletionFails(t *testing.T) {
	r := &stubRetriever{hits: []models.RetrievedChunk{
		{DocumentID: "d1", ChunkID: "d1_0", Text: "context", Score: 0.9},
	}}
	mock := &llm.MockClient{Reply: "fallback answer"}
	failOnce := true
	engine := New(r, &flakyClient{inner: mock, failFirst: &failOnce}, testConfig())

	answer := engine.Query(context.Background(), Request{
		Message:     "question",
		DocumentIDs: []string{"d1"},
	})
	if answer.Status != models.RAGFallback {
		t.Errorf("status = %s", answer.Status)
	}
	if answer.Response != "fallback answer" {
		t.Errorf("response = %q", answer.Response)
	}
	if len(answer.Sources) != 0 {
		t.Error("fallback answers must not claim sources")
	}
}

func TestQuery_EverythingFails(t *testing.T) {
	r := &stubRetriever{err: errors.New("unreachable")}
	mock := &llm.MockClient{Err: errors.New("llm down")}
	engine := New(r, mock, testConfig())

	answer := engine.Query(context.Background(), Request{
		Message:     "question",
		DocumentIDs: []string{"d1"},
	})
	if answer.Status != models.RAGError {
		t.Errorf("status = %s", answer.Status)
	}
	if answer.Response == "" {
		t.Error("even total failure must produce a response")
	}
}

// flakyClient fails the first Complete call, then delegates.
type flakyClient struct {
	inner     llm.CompletionClient
	failFirst *bool
}

func (f *flakyClient) Complete(ctx context.Context, system string, history []models.ChatMessage, message string) (string, error) {
	if *f.failFirst {
		*f.failFirst = false
		return "", errors.New("transient completion failure")
	}
	return f.inner.Complete(ctx, system, history, message)
}

func (f *flakyClient) Close() error { return nil }
