// Package models defines core data structures for documents, chat sessions, and retrieval results.
package models

import (
	"fmt"
	"time"
)

// ProcessingStatus is the lifecycle state of a document's ingestion pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is one of the four known states.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state. Terminal states are only left
// via an explicit reprocess, which restarts the pipeline from pending.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the transition s -> next is allowed.
// pending -> processing -> completed|failed; reprocessing resets any state to pending.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return next == StatusPending
	}
	return false
}

// SourceType identifies where a document's raw content comes from.
type SourceType string

const (
	SourceFile SourceType = "file"
	SourceURL  SourceType = "url"
	SourceQA   SourceType = "qa"
)

// ProcessingStats records pipeline timings for one processing run.
// Written once when the run ends; immutable afterwards.
type ProcessingStats struct {
	DownloadTime   float64 `json:"downloadTime"`
	ProcessingTime float64 `json:"processingTime"`
	TotalTime      float64 `json:"totalTime"`
}

// Document is one ingested knowledge source.
//
// Invariant: when ProcessingStatus is completed, len(VectorIDs) == ChunkCount and
// every vector id resolves in the active vector store; in every other state both
// are empty. Only the document processor mutates ProcessingStatus.
type Document struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Type             SourceType             `json:"type"`
	StorageURI       string                 `json:"storageUri,omitempty"`
	FileSize         int64                  `json:"fileSize,omitempty"`
	ProcessingStatus ProcessingStatus       `json:"processingStatus"`
	ChunkCount       int                    `json:"chunkCount"`
	VectorIDs        []string               `json:"vectorIds,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	ProcessingStats  *ProcessingStats       `json:"processingStats,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// CheckCompleted validates the completed-state invariant.
func (d *Document) CheckCompleted() error {
	if d.ProcessingStatus != StatusCompleted {
		return nil
	}
	if len(d.VectorIDs) != d.ChunkCount {
		return fmt.Errorf("document %s: %d vector ids for %d chunks", d.ID, len(d.VectorIDs), d.ChunkCount)
	}
	return nil
}

// Chunk is a bounded slice of a document's normalized text. Chunks are ephemeral:
// they exist only between chunking and vector upsert, identified by (DocumentID, ID).
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
}
