package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

const qdrantTimeout = 15 * time.Second

// QdrantStore talks to a Qdrant instance over its REST API.
// The collection is created on first use with cosine distance.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client

	initOnce sync.Once
	initErr  error
}

// NewQdrantStore creates a Qdrant-backed store. The collection is initialized
// lazily on the first operation so construction never performs I/O.
func NewQdrantStore(cfg config.QdrantConfig, dimensions int) *QdrantStore {
	return &QdrantStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: dimensions,
		client:     &http.Client{Timeout: qdrantTimeout},
	}
}

func (s *QdrantStore) Name() string    { return "qdrant" }
func (s *QdrantStore) Dimensions() int { return s.dimensions }
func (s *QdrantStore) Close() error    { return nil }

// ensureCollection creates the collection if missing and verifies the stored
// vector size matches the configured embedding dimension.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.initOnce.Do(func() {
		var info struct {
			Result struct {
				Config struct {
					Params struct {
						Vectors struct {
							Size int `json:"size"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		status, err := s.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", s.collection), nil, &info)
		if err != nil {
			s.initErr = err
			return
		}
		if status == http.StatusOK {
			if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != s.dimensions {
				s.initErr = fmt.Errorf("collection %s has size %d, configured %d: %w",
					s.collection, size, s.dimensions, ErrDimensionMismatch)
			}
			return
		}
		body := map[string]any{
			"vectors": map[string]any{"size": s.dimensions, "distance": "Cosine"},
		}
		status, err = s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body, nil)
		if err != nil {
			s.initErr = err
		} else if status >= 300 {
			s.initErr = fmt.Errorf("create collection %s: status %d: %w", s.collection, status, ErrUnavailable)
		}
	})
	return s.initErr
}

// Upsert writes all records in one request. Qdrant point writes are atomic per
// request: on error nothing is reported as stored.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) ([]string, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	points := make([]map[string]any, len(records))
	for i, rec := range records {
		if len(rec.Vector) != s.dimensions {
			return nil, fmt.Errorf("record %d: got %d dimensions, expected %d: %w",
				i, len(rec.Vector), s.dimensions, ErrDimensionMismatch)
		}
		id := VectorID(rec.DocumentID, rec.ChunkID)
		ids[i] = id
		points[i] = map[string]any{
			"id":     id,
			"vector": rec.Vector,
			"payload": map[string]any{
				"document_id": rec.DocumentID,
				"chunk_id":    rec.ChunkID,
				"index":       rec.Index,
				"text":        rec.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	status, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), body, nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant upsert: status %d: %w", status, ErrUnavailable)
	}
	return ids, nil
}

// Search runs a scored point search filtered to the candidate documents.
func (s *QdrantStore) Search(ctx context.Context, query []float32, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query: got %d dimensions, expected %d: %w",
			len(query), s.dimensions, ErrDimensionMismatch)
	}
	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"any": candidateDocIDs}},
			},
		},
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), req, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant search: status %d: %w", status, ErrUnavailable)
	}
	hits := make([]models.RetrievedChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := models.RetrievedChunk{Score: clampScore(r.Score)}
		if v, ok := r.Payload["document_id"].(string); ok {
			hit.DocumentID = v
		}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			hit.ChunkID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			hit.Text = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteByDocument counts the document's points, then deletes them by filter.
// Missing points are fine: the count is simply zero.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "document_id", "match": map[string]any{"value": documentID}},
		},
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", s.collection),
		map[string]any{"filter": filter, "exact": true}, &countResp)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant count: status %d: %w", status, ErrUnavailable)
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}
	status, err = s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection),
		map[string]any{"filter": filter}, nil)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant delete: status %d: %w", status, ErrUnavailable)
	}
	return countResp.Result.Count, nil
}

// do sends one JSON request and decodes the response into out when non-nil.
// Returns the HTTP status code; transport errors map to ErrUnavailable.
func (s *QdrantStore) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %v: %w", method, path, err, ErrUnavailable)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
