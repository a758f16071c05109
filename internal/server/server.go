// Package server provides the HTTP API for ChatSphere.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/processor"
	"github.com/jenilsoni-ai/chatsphere/internal/rag"
	"github.com/jenilsoni-ai/chatsphere/internal/storage"
	"github.com/jenilsoni-ai/chatsphere/internal/vectorstore"
)

// Server is the HTTP server for the ChatSphere API.
type Server struct {
	storage   storage.Storage
	processor *processor.Processor
	engine    *rag.Engine
	stores    *vectorstore.Manager
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Storage,
	proc *processor.Processor,
	engine *rag.Engine,
	stores *vectorstore.Manager,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		storage:   store,
		processor: proc,
		engine:    engine,
		stores:    stores,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.handleUploadDocument)
		r.Post("/documents/url", s.handleAddURLDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/documents/{id}/reprocess", s.handleReprocessDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/chat", s.handleChat)
		r.Post("/chat/widget/{chatbotId}", s.handleChat)

		r.Get("/settings/vector-store", s.handleGetVectorStoreSettings)
		r.Post("/settings/vector-store", s.handleSetVectorStoreSettings)

		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
