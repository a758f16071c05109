// Package chunker splits normalized document text into bounded, overlapping
// passages for embedding.
package chunker

import (
	"fmt"
	"strings"

	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

// Chunker produces deterministic word-window chunks: the same text, size and
// overlap always yield the same boundaries and count.
type Chunker struct {
	size    int // words per chunk
	overlap int // words shared between consecutive chunks
}

// New creates a Chunker. size must be positive and overlap must be smaller
// than size, otherwise the window cannot advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks text for the given document. Whitespace-only text yields no
// chunks. Chunk ids are the document id joined with the zero-based index.
func (c *Chunker) Split(documentID, text string) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []models.Chunk
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, models.Chunk{
			ID:         ChunkID(documentID, len(chunks)),
			DocumentID: documentID,
			Index:      len(chunks),
			Text:       strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// ChunkID renders the stable id of a document's chunk at the given index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}
