package watcher

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jenilsoni-ai/chatsphere/internal/models"
	"github.com/jenilsoni-ai/chatsphere/internal/processor"
	"github.com/jenilsoni-ai/chatsphere/internal/storage"
)

// ingestNamespace makes document ids deterministic per dropped file path, so
// rewriting a file updates its document instead of creating a new one.
var ingestNamespace = uuid.MustParse("6c1a5c1e-2b8f-4a65-9a7e-54d1f0b8c3aa")

// Ingestor turns drop-folder file events into document records and pipeline runs.
type Ingestor struct {
	storage   storage.Storage
	processor *processor.Processor
	logger    *zap.Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(store storage.Storage, proc *processor.Processor, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{storage: store, processor: proc, logger: logger}
}

// DocumentID returns the document id for a dropped file path.
func DocumentID(path string) string {
	return uuid.NewSHA1(ingestNamespace, []byte(filepath.Clean(path))).String()
}

// OnFile registers a new dropped file as a pending document, or reprocesses
// the existing document when the file was rewritten.
func (in *Ingestor) OnFile(path string) {
	ctx := context.Background()
	id := DocumentID(path)

	_, err := in.storage.GetDocument(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		doc := &models.Document{
			ID:               id,
			Name:             filepath.Base(path),
			Type:             models.SourceFile,
			StorageURI:       path,
			ProcessingStatus: models.StatusPending,
			Metadata: map[string]interface{}{
				"source": "watch",
			},
		}
		if err := in.storage.CreateDocument(ctx, doc); err != nil {
			in.logger.Error("failed to register dropped file",
				zap.String("path", path), zap.Error(err))
			return
		}
		in.logger.Info("dropped file registered",
			zap.String("path", path), zap.String("doc_id", id))
		in.processor.Enqueue(ctx, id)
	case err != nil:
		in.logger.Error("failed to look up dropped file",
			zap.String("path", path), zap.Error(err))
	default:
		if err := in.processor.Reprocess(ctx, id); err != nil {
			in.logger.Warn("failed to reprocess rewritten file",
				zap.String("path", path), zap.Error(err))
			return
		}
		in.logger.Info("rewritten file reprocessed",
			zap.String("path", path), zap.String("doc_id", id))
	}
}

// OnRemove deletes the document for a file removed from a drop folder.
// Unknown paths are ignored.
func (in *Ingestor) OnRemove(path string) {
	ctx := context.Background()
	id := DocumentID(path)
	if err := in.processor.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return
		}
		in.logger.Warn("failed to delete document for removed file",
			zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Info("document deleted for removed file",
		zap.String("path", path), zap.String("doc_id", id))
}
