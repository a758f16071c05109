package models

import "time"

// RAGStatus describes how an assistant answer was (or was not) grounded.
// The set is closed: new branches are added here, never inferred from response text.
type RAGStatus string

const (
	// RAGSuccess: at least one retrieved chunk passed the similarity threshold
	// and the answer was grounded in it.
	RAGSuccess RAGStatus = "rag_success"
	// RAGFallback: retrieval succeeded but the grounded completion failed, so
	// grounding was deliberately bypassed and a history-only answer returned.
	RAGFallback RAGStatus = "llm_fallback"
	// RAGNoContext: retrieval ran but nothing passed the threshold.
	RAGNoContext RAGStatus = "no_context_found"
	// RAGNoDocuments: the chatbot had no attached documents; retrieval was skipped.
	RAGNoDocuments RAGStatus = "no_documents"
	// RAGError: retrieval or generation failed unexpectedly.
	RAGError RAGStatus = "error"
)

// Valid reports whether s is one of the five known statuses.
func (s RAGStatus) Valid() bool {
	switch s {
	case RAGSuccess, RAGFallback, RAGNoContext, RAGNoDocuments, RAGError:
		return true
	}
	return false
}

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source is one retrieved chunk reference attached to an assistant message,
// ranked by descending score.
type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
}

// ChatMessage is a single turn in a chat session. Assistant messages carry the
// sources and RAG status of the answer. Messages are immutable once written.
type ChatMessage struct {
	Role      string    `json:"role"` // RoleUser or RoleAssistant
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	RAGStatus RAGStatus `json:"rag_status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID        string        `json:"id"`
	ChatbotID string        `json:"chatbotId,omitempty"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// RetrievedChunk is a vector search hit: a chunk with its similarity score in [0,1].
type RetrievedChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}
