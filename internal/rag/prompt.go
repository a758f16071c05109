package rag

import (
	"strings"

	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

const (
	groundedInstruction = "Use ONLY the provided context to answer the question. " +
		"If the context doesn't contain the answer, admit that you don't know rather than making up information."
	ungroundedInstruction = "Answer the user's question to the best of your ability based on your general knowledge."

	// noContextPrefix labels answers generated after knowledge lookup found
	// nothing relevant.
	noContextPrefix = "I couldn't find specific information about that in the knowledge base. "
)

// systemPrompt joins the configured instructions with the grounding rule.
func systemPrompt(instructions string, grounded bool) string {
	parts := make([]string, 0, 2)
	if instructions != "" {
		parts = append(parts, instructions)
	}
	if grounded {
		parts = append(parts, groundedInstruction)
	} else {
		parts = append(parts, ungroundedInstruction)
	}
	return strings.Join(parts, " ")
}

// groundedMessage wraps the user's question with the retrieved context.
func groundedMessage(chunks []models.RetrievedChunk, question string) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// prefixNoContext prepends the no-context label unless already present.
func prefixNoContext(text string) string {
	if strings.HasPrefix(text, noContextPrefix) {
		return text
	}
	return noContextPrefix + text
}
