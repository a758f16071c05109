// Package processor owns the document ingestion pipeline and the document
// lifecycle state machine.
package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jenilsoni-ai/chatsphere/internal/chunker"
	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/embedding"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
	"github.com/jenilsoni-ai/chatsphere/internal/storage"
	"github.com/jenilsoni-ai/chatsphere/internal/vectorstore"
)

// StoreProvider returns the currently active vector store. Each pipeline run
// snapshots the provider once at its start, so a runtime backend switch only
// affects runs started afterwards.
type StoreProvider func() vectorstore.VectorStore

// Processor drives documents through fetch, chunk, embed and vector upsert,
// and is the only component that mutates a document's processing status.
type Processor struct {
	storage  storage.Storage
	fetcher  *Fetcher
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	stores   StoreProvider
	cfg      config.ProcessingConfig
	logger   *zap.Logger

	locks   *docLocks
	group   *errgroup.Group
	pending sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// New creates a processor. Background runs started with Enqueue share a
// bounded worker pool of cfg.Workers.
func New(
	store storage.Storage,
	fetcher *Fetcher,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	stores StoreProvider,
	cfg config.ProcessingConfig,
	opts ...Option,
) *Processor {
	p := &Processor{
		storage:  store,
		fetcher:  fetcher,
		chunker:  ch,
		embedder: embedder,
		stores:   stores,
		cfg:      cfg,
		logger:   zap.NewNop(),
		locks:    newDocLocks(),
		group:    &errgroup.Group{},
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	p.group.SetLimit(workers)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue schedules a document for background processing and returns
// immediately; the run starts once a worker slot frees up.
func (p *Processor) Enqueue(ctx context.Context, id string) {
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		p.group.Go(func() error {
			if err := p.Process(ctx, id); err != nil {
				p.logger.Warn("document processing failed",
					zap.String("doc_id", id), zap.Error(err))
			}
			return nil
		})
	}()
}

// Wait blocks until all enqueued runs have finished.
func (p *Processor) Wait() {
	p.pending.Wait()
	_ = p.group.Wait()
}

// Process runs the full pipeline for one pending document. The document is
// locked for the duration of the run. A run that fails leaves the document in
// the failed state with its error recorded; the pipeline error is also
// returned to the caller.
func (p *Processor) Process(ctx context.Context, id string) error {
	lock := p.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	doc, err := p.storage.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if !doc.ProcessingStatus.CanTransition(models.StatusProcessing) {
		return fmt.Errorf("document %s is %s, cannot start processing", id, doc.ProcessingStatus)
	}

	doc.ProcessingStatus = models.StatusProcessing
	doc.Error = ""
	if err := p.storage.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	p.logger.Info("processing document", zap.String("doc_id", id), zap.String("type", string(doc.Type)))

	start := time.Now()
	text, err := p.fetcher.Fetch(ctx, doc)
	downloadTime := time.Since(start).Seconds()
	if err != nil {
		return p.fail(ctx, doc, downloadTime, start, fmt.Errorf("fetch source: %w", err))
	}

	chunks := p.chunker.Split(doc.ID, text)
	if len(chunks) == 0 {
		return p.fail(ctx, doc, downloadTime, start, fmt.Errorf("document contains no extractable text"))
	}

	vectorIDs, err := p.embedAndUpsert(ctx, doc, chunks)
	if err != nil {
		return p.fail(ctx, doc, downloadTime, start, err)
	}

	doc.ProcessingStatus = models.StatusCompleted
	doc.ChunkCount = len(chunks)
	doc.VectorIDs = vectorIDs
	doc.Error = ""
	total := time.Since(start).Seconds()
	doc.ProcessingStats = &models.ProcessingStats{
		DownloadTime:   downloadTime,
		ProcessingTime: total - downloadTime,
		TotalTime:      total,
	}
	if err := doc.CheckCompleted(); err != nil {
		return p.fail(ctx, doc, downloadTime, start, err)
	}
	if err := p.storage.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	p.logger.Info("document processed",
		zap.String("doc_id", id),
		zap.Int("chunks", len(chunks)),
		zap.Float64("seconds", total))
	return nil
}

// embedAndUpsert embeds all chunks and writes them to the vector store
// snapshotted at the start of the run. Both stages retry transient failures
// with exponential backoff. On upsert failure any partial vectors are rolled
// back so no orphans remain.
func (p *Processor) embedAndUpsert(ctx context.Context, doc *models.Document, chunks []models.Chunk) ([]string, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	var embeddings [][]float32
	err := p.retry(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = p.embedder.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = vectorstore.Record{
			DocumentID: ch.DocumentID,
			ChunkID:    ch.ID,
			Index:      ch.Index,
			Text:       ch.Text,
			Vector:     embeddings[i],
		}
	}

	store := p.stores()
	var vectorIDs []string
	err = p.retry(ctx, func(ctx context.Context) error {
		var err error
		vectorIDs, err = store.Upsert(ctx, records)
		return err
	})
	if err != nil {
		if _, rollbackErr := store.DeleteByDocument(ctx, doc.ID); rollbackErr != nil {
			p.logger.Warn("vector rollback failed",
				zap.String("doc_id", doc.ID), zap.Error(rollbackErr))
		}
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}
	return vectorIDs, nil
}

// retry runs op with exponential backoff up to cfg.MaxRetries additional
// attempts. Every attempt carries its own deadline so a stalled remote call
// cannot pin a worker slot.
func (p *Processor) retry(ctx context.Context, op func(context.Context) error) error {
	timeout := p.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.cfg.MaxRetries)),
		ctx,
	)
	return backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return op(attemptCtx)
	}, b)
}

// fail moves the document to the failed state, clearing chunk bookkeeping.
func (p *Processor) fail(ctx context.Context, doc *models.Document, downloadTime float64, start time.Time, cause error) error {
	doc.ProcessingStatus = models.StatusFailed
	doc.Error = cause.Error()
	doc.ChunkCount = 0
	doc.VectorIDs = nil
	total := time.Since(start).Seconds()
	doc.ProcessingStats = &models.ProcessingStats{
		DownloadTime:   downloadTime,
		ProcessingTime: total - downloadTime,
		TotalTime:      total,
	}
	if err := p.storage.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("failed to record document failure",
			zap.String("doc_id", doc.ID), zap.Error(err))
	}
	p.logger.Warn("document failed", zap.String("doc_id", doc.ID), zap.Error(cause))
	return cause
}

// Reprocess resets a terminal document to pending, removing its previous
// vectors, and schedules a fresh pipeline run.
func (p *Processor) Reprocess(ctx context.Context, id string) error {
	lock := p.locks.get(id)
	lock.Lock()

	doc, err := p.storage.GetDocument(ctx, id)
	if err != nil {
		lock.Unlock()
		return err
	}
	if !doc.ProcessingStatus.CanTransition(models.StatusPending) {
		lock.Unlock()
		return fmt.Errorf("document %s is %s, cannot reprocess", id, doc.ProcessingStatus)
	}

	store := p.stores()
	if _, err := store.DeleteByDocument(ctx, id); err != nil {
		lock.Unlock()
		return fmt.Errorf("delete previous vectors: %w", err)
	}

	doc.ProcessingStatus = models.StatusPending
	doc.ChunkCount = 0
	doc.VectorIDs = nil
	doc.Error = ""
	doc.ProcessingStats = nil
	if err := p.storage.UpdateDocument(ctx, doc); err != nil {
		lock.Unlock()
		return err
	}
	lock.Unlock()

	p.Enqueue(ctx, id)
	return nil
}

// Delete removes a document's vectors, stored upload and record. Idempotent
// on the vector side: missing vectors are not an error.
func (p *Processor) Delete(ctx context.Context, id string) error {
	lock := p.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	doc, err := p.storage.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	store := p.stores()
	deleted, err := store.DeleteByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}

	if doc.Type != models.SourceURL && doc.StorageURI != "" {
		if err := os.Remove(doc.StorageURI); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove stored upload",
				zap.String("doc_id", id), zap.String("path", doc.StorageURI), zap.Error(err))
		}
	}

	if err := p.storage.DeleteDocument(ctx, id); err != nil {
		return err
	}
	p.logger.Info("document deleted", zap.String("doc_id", id), zap.Int("vectors", deleted))
	return nil
}
