package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/extract"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
	"github.com/jenilsoni-ai/chatsphere/internal/rag"
	"github.com/jenilsoni-ai/chatsphere/internal/storage"
	"github.com/jenilsoni-ai/chatsphere/internal/vectorstore"
)

const maxUploadBytes = 32 << 20 // 32 MiB

const settingVectorStore = "vector_store"

// handleUploadDocument creates a document from a multipart file upload, or
// from a JSON body of question/answer pairs. The record is created in the
// pending state and processed asynchronously; callers observe completion by
// polling the document.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.handleUploadQADocument(w, r)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !extract.Supported(ext) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", ext))
		return
	}

	docID := uuid.New().String()
	path, size, err := s.saveUpload(file, docID+ext)
	if err != nil {
		s.logger.Error("failed to store upload", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	doc := &models.Document{
		ID:               docID,
		Name:             name,
		Description:      r.FormValue("description"),
		Type:             models.SourceFile,
		StorageURI:       path,
		FileSize:         size,
		ProcessingStatus: models.StatusPending,
		Metadata: map[string]interface{}{
			"fileType":     strings.TrimPrefix(ext, "."),
			"originalName": header.Filename,
		},
	}
	s.createAndEnqueue(w, r, doc)
}

type qaUploadRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	QAPairs     []extract.QAPair `json:"qaPairs"`
}

// handleUploadQADocument stores QA pairs as a plain-text document.
func (s *Server) handleUploadQADocument(w http.ResponseWriter, r *http.Request) {
	var req qaUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.QAPairs) == 0 {
		s.respondError(w, http.StatusBadRequest, "qaPairs is required")
		return
	}
	if req.Name == "" {
		req.Name = "QA document"
	}

	docID := uuid.New().String()
	text := extract.FormatQAPairs(req.QAPairs)
	path, size, err := s.saveUpload(strings.NewReader(text), docID+".txt")
	if err != nil {
		s.logger.Error("failed to store QA document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store QA document")
		return
	}

	doc := &models.Document{
		ID:               docID,
		Name:             req.Name,
		Description:      req.Description,
		Type:             models.SourceQA,
		StorageURI:       path,
		FileSize:         size,
		ProcessingStatus: models.StatusPending,
		Metadata: map[string]interface{}{
			"qaCount": len(req.QAPairs),
		},
	}
	s.createAndEnqueue(w, r, doc)
}

type urlDocumentRequest struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// handleAddURLDocument creates a document whose content is fetched from a URL
// during processing.
func (s *Server) handleAddURLDocument(w http.ResponseWriter, r *http.Request) {
	var req urlDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		s.respondError(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	if req.Name == "" {
		req.Name = parsed.Host + parsed.Path
	}

	doc := &models.Document{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Description:      req.Description,
		Type:             models.SourceURL,
		StorageURI:       req.URL,
		ProcessingStatus: models.StatusPending,
		Metadata: map[string]interface{}{
			"sourceUrl": req.URL,
		},
	}
	s.createAndEnqueue(w, r, doc)
}

// createAndEnqueue persists the pending document and schedules processing.
// Processing uses a background context: it must outlive this request.
func (s *Server) createAndEnqueue(w http.ResponseWriter, r *http.Request, doc *models.Document) {
	if err := s.storage.CreateDocument(r.Context(), doc); err != nil {
		s.logger.Error("failed to create document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to create document")
		return
	}
	s.processor.Enqueue(context.Background(), doc.ID)
	s.logger.Info("document accepted",
		zap.String("doc_id", doc.ID), zap.String("type", string(doc.Type)))
	s.respondJSON(w, http.StatusCreated, doc)
}

// saveUpload writes content into the upload directory and returns its path and size.
func (s *Server) saveUpload(content io.Reader, filename string) (string, int64, error) {
	dir := s.config.Storage.UploadDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	size, err := io.Copy(f, io.LimitReader(content, maxUploadBytes))
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	return path, size, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleReprocessDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.processor.Reprocess(context.Background(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "pending"})
}

// handleDeleteDocument deletes a document's vectors, stored upload and record.
// Deleting an unknown id is a success: the end state is the same.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.processor.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
			return
		}
		s.logger.Error("delete document failed", zap.String("doc_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type chatRequest struct {
	Message      string               `json:"message"`
	SessionID    string               `json:"sessionId,omitempty"`
	ChatHistory  []models.ChatMessage `json:"chatHistory,omitempty"`
	Documents    []string             `json:"documents,omitempty"`
	Instructions string               `json:"instructions,omitempty"`
}

type chatResponse struct {
	Response  string           `json:"response"`
	Sources   []models.Source  `json:"sources,omitempty"`
	SessionID string           `json:"sessionId"`
	RAGStatus models.RAGStatus `json:"rag_status"`
}

// handleChat answers one chat turn. Retrieval is scoped to the documents
// named in the request. On the widget route a request naming none falls back
// to every completed document; on the direct route an empty list means the
// caller attached nothing and the answer is not grounded.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	chatbotID := chi.URLParam(r, "chatbotId")

	session, isNew := s.loadSession(r.Context(), req.SessionID, chatbotID)
	history := req.ChatHistory
	if history == nil {
		history = session.Messages
	}

	documents := req.Documents
	if len(documents) == 0 && chatbotID != "" {
		var err error
		documents, err = s.completedDocuments(r.Context())
		if err != nil {
			s.logger.Error("resolve documents failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	answer := s.engine.Query(r.Context(), rag.Request{
		Message:      req.Message,
		DocumentIDs:  documents,
		History:      history,
		Instructions: req.Instructions,
	})

	now := time.Now()
	session.Messages = append(session.Messages,
		models.ChatMessage{Role: models.RoleUser, Content: req.Message, CreatedAt: now},
		models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   answer.Response,
			Sources:   answer.Sources,
			RAGStatus: answer.Status,
			CreatedAt: now,
		},
	)
	if err := s.storage.SaveSession(r.Context(), session); err != nil {
		s.logger.Warn("failed to persist chat session",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	if isNew {
		s.logger.Info("chat session started", zap.String("session_id", session.ID))
	}

	s.respondJSON(w, http.StatusOK, chatResponse{
		Response:  answer.Response,
		Sources:   answer.Sources,
		SessionID: session.ID,
		RAGStatus: answer.Status,
	})
}

// loadSession fetches an existing session or starts a new one.
func (s *Server) loadSession(ctx context.Context, sessionID, chatbotID string) (*models.ChatSession, bool) {
	if sessionID != "" {
		if session, err := s.storage.GetSession(ctx, sessionID); err == nil {
			return session, false
		}
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &models.ChatSession{ID: sessionID, ChatbotID: chatbotID}, true
}

// completedDocuments returns the ids of every completed document.
func (s *Server) completedDocuments(ctx context.Context) ([]string, error) {
	docs, err := s.storage.ListDocuments(ctx, 0, 500)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, doc := range docs {
		if doc.ProcessingStatus == models.StatusCompleted {
			ids = append(ids, doc.ID)
		}
	}
	return ids, nil
}

type vectorStoreSettings struct {
	Type   string              `json:"type"`
	Zilliz *zillizSettingsView `json:"zilliz,omitempty"`
	Qdrant *qdrantSettingsView `json:"qdrant,omitempty"`
}

type zillizSettingsView struct {
	URI        string `json:"uri"`
	APIKey     string `json:"apiKey"`
	Collection string `json:"collection"`
}

type qdrantSettingsView struct {
	URL        string `json:"url"`
	APIKey     string `json:"apiKey"`
	Collection string `json:"collection"`
}

const maskedCredential = "****"

func maskCredential(v string) string {
	if v == "" {
		return ""
	}
	return maskedCredential
}

// handleGetVectorStoreSettings reports the active backend with credentials masked.
func (s *Server) handleGetVectorStoreSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.stores.Config()
	view := vectorStoreSettings{Type: cfg.Type}
	if cfg.Type == "" {
		view.Type = "memory"
	}
	if cfg.Zilliz.URI != "" {
		view.Zilliz = &zillizSettingsView{
			URI:        cfg.Zilliz.URI,
			APIKey:     maskCredential(cfg.Zilliz.APIKey),
			Collection: cfg.Zilliz.Collection,
		}
	}
	if cfg.Qdrant.URL != "" {
		view.Qdrant = &qdrantSettingsView{
			URL:        cfg.Qdrant.URL,
			APIKey:     maskCredential(cfg.Qdrant.APIKey),
			Collection: cfg.Qdrant.Collection,
		}
	}
	s.respondJSON(w, http.StatusOK, view)
}

// handleSetVectorStoreSettings switches the active backend. Operations already
// in flight keep the store they started with; the new backend serves
// operations started after this call returns.
func (s *Server) handleSetVectorStoreSettings(w http.ResponseWriter, r *http.Request) {
	var req vectorStoreSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := s.stores.Config()
	cfg.Type = req.Type
	if req.Zilliz != nil {
		cfg.Zilliz.URI = req.Zilliz.URI
		if req.Zilliz.APIKey != "" && req.Zilliz.APIKey != maskedCredential {
			cfg.Zilliz.APIKey = req.Zilliz.APIKey
		}
		if req.Zilliz.Collection != "" {
			cfg.Zilliz.Collection = req.Zilliz.Collection
		}
	}
	if req.Qdrant != nil {
		cfg.Qdrant.URL = req.Qdrant.URL
		if req.Qdrant.APIKey != "" && req.Qdrant.APIKey != maskedCredential {
			cfg.Qdrant.APIKey = req.Qdrant.APIKey
		}
		if req.Qdrant.Collection != "" {
			cfg.Qdrant.Collection = req.Qdrant.Collection
		}
	}

	if err := s.stores.Switch(cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if data, err := json.Marshal(cfg); err == nil {
		if err := s.storage.SetSetting(r.Context(), settingVectorStore, string(data)); err != nil {
			s.logger.Warn("failed to persist vector store settings", zap.Error(err))
		}
	}
	s.logger.Info("vector store switched", zap.String("type", cfg.Type))
	s.handleGetVectorStoreSettings(w, r)
}

// LoadPersistedVectorStore applies a previously saved backend selection.
// Called once at startup; missing settings are not an error.
func LoadPersistedVectorStore(ctx context.Context, store storage.Storage, stores *vectorstore.Manager) error {
	raw, err := store.GetSetting(ctx, settingVectorStore)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	var cfg config.VectorStoreConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return fmt.Errorf("decode persisted vector store settings: %w", err)
	}
	return stores.Switch(cfg)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.storage.CountDocuments(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	store := s.stores.Current()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents":    docCount,
		"vector_store": store.Name(),
		"config": map[string]interface{}{
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": store.Dimensions(),
			"chunk_size":           s.config.Processing.ChunkSize,
			"chunk_overlap":        s.config.Processing.ChunkOverlap,
			"top_k":                s.config.RAG.TopK,
			"similarity_cutoff":    s.config.RAG.SimilarityCutoff,
		},
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
