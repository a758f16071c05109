package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

// MockClient is a canned completion client for tests.
type MockClient struct {
	// Reply is returned verbatim when non-empty.
	Reply string
	// Err, when set, is returned from every Complete call.
	Err error
	// Calls records the messages passed to Complete.
	Calls []MockCall
}

// MockCall captures one Complete invocation.
type MockCall struct {
	System  string
	History []models.ChatMessage
	Message string
}

// NewMockClient returns a client that always replies with reply.
func NewMockClient(reply string) *MockClient {
	return &MockClient{Reply: reply}
}

// Complete records the call and returns the canned reply, or a summary of the
// input when no reply was configured.
func (m *MockClient) Complete(ctx context.Context, system string, history []models.ChatMessage, message string) (string, error) {
	m.Calls = append(m.Calls, MockCall{System: system, History: history, Message: message})
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return fmt.Sprintf("mock reply to %q", strings.TrimSpace(message)), nil
}

// Close is a no-op for MockClient.
func (m *MockClient) Close() error { return nil }
