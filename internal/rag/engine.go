// Package rag decides whether and how a chat answer is grounded in retrieved
// document context, and labels every answer with a status from a closed set.
package rag

import (
	"context"

	"go.uber.org/zap"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/llm"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
	"github.com/jenilsoni-ai/chatsphere/internal/retriever"
)

const apologyMessage = "I apologize, but I encountered an unexpected error. Please try again later."

// Retriever is the chunk retrieval dependency of the engine.
type Retriever interface {
	Retrieve(ctx context.Context, query string, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error)
}

// Request is one chat turn to answer.
type Request struct {
	Message     string
	DocumentIDs []string
	History     []models.ChatMessage
	// Instructions overrides the configured system instructions when non-empty.
	Instructions string
}

// Answer is the engine's labeled result. Status is always one of the five
// known values; Sources is non-empty only for rag_success.
type Answer struct {
	Response string
	Sources  []models.Source
	Status   models.RAGStatus
}

// Engine runs the grounding decision procedure.
type Engine struct {
	retriever Retriever
	completer llm.CompletionClient
	cfg       config.RAGConfig
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for grounding decisions.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates a RAG engine.
func New(r Retriever, completer llm.CompletionClient, cfg config.RAGConfig, opts ...Option) *Engine {
	e := &Engine{
		retriever: r,
		completer: completer,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query answers one chat turn. The returned Answer always carries a valid
// status; failures surface as the error or llm_fallback statuses rather than
// as a Go error, so every turn yields a recordable assistant message.
//
// Decision procedure:
//  1. No attached documents: skip retrieval, answer from history (no_documents).
//  2. Retrieval fails: the failure is surfaced as the error status; a
//     history-only answer is still attempted so the conversation can continue,
//     but the status never claims grounding.
//  3. Nothing passes the similarity cutoff: answer from history, prefixed so
//     the user knows lookup found nothing (no_context_found).
//  4. Chunks survive: grounded answer with sources (rag_success). If the
//     grounded completion call fails, grounding is abandoned and a
//     history-only answer is attempted instead (llm_fallback).
func (e *Engine) Query(ctx context.Context, req Request) Answer {
	instructions := req.Instructions
	if instructions == "" {
		instructions = e.cfg.Instructions
	}

	if len(req.DocumentIDs) == 0 {
		e.logger.Debug("no documents attached, skipping retrieval")
		return e.ungrounded(ctx, req, instructions, models.RAGNoDocuments)
	}

	hits, err := e.retriever.Retrieve(ctx, req.Message, req.DocumentIDs, e.cfg.TopK)
	if err != nil {
		e.logger.Error("retrieval failed", zap.Error(err))
		return e.ungrounded(ctx, req, instructions, models.RAGError)
	}

	kept := retriever.FilterByScore(hits, e.cfg.SimilarityCutoff)
	if len(kept) == 0 {
		e.logger.Info("no chunks above similarity cutoff",
			zap.Int("retrieved", len(hits)),
			zap.Float64("cutoff", e.cfg.SimilarityCutoff))
		answer := e.ungrounded(ctx, req, instructions, models.RAGNoContext)
		if answer.Status == models.RAGNoContext {
			answer.Response = prefixNoContext(answer.Response)
		}
		return answer
	}

	response, err := e.completer.Complete(ctx, systemPrompt(instructions, true),
		req.History, groundedMessage(kept, req.Message))
	if err != nil {
		// Grounding was attempted; bypass it rather than fail the turn.
		e.logger.Warn("grounded completion failed, falling back", zap.Error(err))
		return e.ungrounded(ctx, req, instructions, models.RAGFallback)
	}

	sources := make([]models.Source, len(kept))
	for i, c := range kept {
		sources[i] = models.Source{DocumentID: c.DocumentID, ChunkID: c.ChunkID, Score: c.Score}
	}
	e.logger.Info("grounded answer", zap.Int("sources", len(sources)))
	return Answer{Response: response, Sources: sources, Status: models.RAGSuccess}
}

// ungrounded answers from conversation history alone and labels the result
// with status. When even that completion fails, the status degrades to error
// with an apology message.
func (e *Engine) ungrounded(ctx context.Context, req Request, instructions string, status models.RAGStatus) Answer {
	response, err := e.completer.Complete(ctx, systemPrompt(instructions, false), req.History, req.Message)
	if err != nil {
		e.logger.Error("completion failed", zap.Error(err))
		return Answer{Response: apologyMessage, Status: models.RAGError}
	}
	return Answer{Response: response, Status: status}
}
