// Package llm provides chat completion clients.
package llm

import (
	"context"
	"fmt"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

// CompletionClient generates an assistant reply from system instructions,
// prior conversation turns and the latest user message.
type CompletionClient interface {
	Complete(ctx context.Context, system string, history []models.ChatMessage, message string) (string, error)
	Close() error
}

// New creates the completion client for the configured model. A mock client is
// returned when apiKey is the literal "mock", for offline development.
func New(ctx context.Context, cfg config.RAGConfig, apiKey string) (CompletionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("completion client requires an API key")
	}
	if apiKey == "mock" {
		return NewMockClient(""), nil
	}
	return NewGeminiClient(ctx, cfg, apiKey)
}
