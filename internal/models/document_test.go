package models

import "testing"

func TestProcessingStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to ProcessingStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusPending, true},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusCompleted, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestProcessingStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Error("pending/processing should not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed/failed should be terminal")
	}
}

func TestDocument_CheckCompleted(t *testing.T) {
	doc := &Document{ID: "d1", ProcessingStatus: StatusCompleted, ChunkCount: 2, VectorIDs: []string{"v1", "v2"}}
	if err := doc.CheckCompleted(); err != nil {
		t.Errorf("valid completed document: %v", err)
	}
	doc.VectorIDs = doc.VectorIDs[:1]
	if err := doc.CheckCompleted(); err == nil {
		t.Error("expected invariant violation for chunkCount != len(vectorIds)")
	}
	doc.ProcessingStatus = StatusFailed
	if err := doc.CheckCompleted(); err != nil {
		t.Errorf("non-completed document should not be checked: %v", err)
	}
}

func TestRAGStatus_Valid(t *testing.T) {
	for _, s := range []RAGStatus{RAGSuccess, RAGFallback, RAGNoContext, RAGNoDocuments, RAGError} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if RAGStatus("partial_success").Valid() {
		t.Error("unknown status should be invalid")
	}
}
