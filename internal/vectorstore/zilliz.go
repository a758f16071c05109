package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

const zillizTimeout = 30 * time.Second

// ZillizStore talks to a Zilliz Cloud (managed Milvus) cluster over the
// v2 vectordb REST API. The collection is created on first use with cosine
// metric and dynamic payload fields.
type ZillizStore struct {
	uri        string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client

	initOnce sync.Once
	initErr  error
}

// NewZillizStore creates a Zilliz-backed store. The collection is initialized
// lazily on the first operation so construction never performs I/O.
func NewZillizStore(cfg config.ZillizConfig, dimensions int) *ZillizStore {
	return &ZillizStore{
		uri:        strings.TrimSuffix(cfg.URI, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: dimensions,
		client:     &http.Client{Timeout: zillizTimeout},
	}
}

func (s *ZillizStore) Name() string    { return "zilliz" }
func (s *ZillizStore) Dimensions() int { return s.dimensions }
func (s *ZillizStore) Close() error    { return nil }

// zillizEnvelope is the common response wrapper: code 0 means success.
type zillizEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ensureCollection describes the collection, creating it when absent, and
// verifies its vector dimension against the configured embedding dimension.
func (s *ZillizStore) ensureCollection(ctx context.Context) error {
	s.initOnce.Do(func() {
		env, err := s.post(ctx, "/v2/vectordb/collections/describe",
			map[string]any{"collectionName": s.collection})
		if err != nil {
			s.initErr = err
			return
		}
		if env.Code == 0 {
			if dim := describeDimension(env.Data); dim != 0 && dim != s.dimensions {
				s.initErr = fmt.Errorf("collection %s has dim %d, configured %d: %w",
					s.collection, dim, s.dimensions, ErrDimensionMismatch)
			}
			return
		}
		env, err = s.post(ctx, "/v2/vectordb/collections/create", map[string]any{
			"collectionName": s.collection,
			"dimension":      s.dimensions,
			"metricType":     "COSINE",
			"idType":         "VarChar",
			"primaryFieldName": "id",
			"vectorFieldName":  "vector",
			"params": map[string]any{
				"max_length":         100,
				"enableDynamicField": true,
			},
		})
		if err != nil {
			s.initErr = err
			return
		}
		if env.Code != 0 {
			s.initErr = fmt.Errorf("create collection %s: %s: %w", s.collection, env.Message, ErrUnavailable)
		}
	})
	return s.initErr
}

// describeDimension digs the vector field's dim out of a describe response.
// Returns 0 when the shape is not recognized; the check is then skipped.
func describeDimension(data json.RawMessage) int {
	var desc struct {
		Fields []struct {
			Name   string `json:"name"`
			Params []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"params"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return 0
	}
	for _, f := range desc.Fields {
		if f.Name != "vector" {
			continue
		}
		for _, p := range f.Params {
			if p.Key == "dim" {
				if n, err := strconv.Atoi(p.Value); err == nil {
					return n
				}
			}
		}
	}
	return 0
}

// Upsert writes all records in one request via the entities/upsert endpoint.
// The deterministic primary key makes re-upserts replace rather than duplicate.
func (s *ZillizStore) Upsert(ctx context.Context, records []Record) ([]string, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	data := make([]map[string]any, len(records))
	for i, rec := range records {
		if len(rec.Vector) != s.dimensions {
			return nil, fmt.Errorf("record %d: got %d dimensions, expected %d: %w",
				i, len(rec.Vector), s.dimensions, ErrDimensionMismatch)
		}
		id := VectorID(rec.DocumentID, rec.ChunkID)
		ids[i] = id
		data[i] = map[string]any{
			"id":          id,
			"vector":      rec.Vector,
			"document_id": rec.DocumentID,
			"chunk_id":    rec.ChunkID,
			"index":       rec.Index,
			"text":        rec.Text,
		}
	}
	env, err := s.post(ctx, "/v2/vectordb/entities/upsert", map[string]any{
		"collectionName": s.collection,
		"data":           data,
	})
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("zilliz upsert: %s: %w", env.Message, ErrUnavailable)
	}
	var result struct {
		UpsertCount int `json:"upsertCount"`
	}
	if err := json.Unmarshal(env.Data, &result); err == nil && result.UpsertCount != len(records) && result.UpsertCount != 0 {
		// Never report success for a superset of what was stored.
		return nil, fmt.Errorf("zilliz upsert: stored %d of %d records", result.UpsertCount, len(records))
	}
	return ids, nil
}

// Search runs an ANN search restricted by filter to the candidate documents.
func (s *ZillizStore) Search(ctx context.Context, query []float32, candidateDocIDs []string, topK int) ([]models.RetrievedChunk, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query: got %d dimensions, expected %d: %w",
			len(query), s.dimensions, ErrDimensionMismatch)
	}
	env, err := s.post(ctx, "/v2/vectordb/entities/search", map[string]any{
		"collectionName": s.collection,
		"data":           [][]float32{query},
		"annsField":      "vector",
		"filter":         documentFilter(candidateDocIDs),
		"limit":          topK,
		"outputFields":   []string{"document_id", "chunk_id", "text"},
	})
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("zilliz search: %s: %w", env.Message, ErrUnavailable)
	}
	var rows []struct {
		Distance   float64 `json:"distance"`
		DocumentID string  `json:"document_id"`
		ChunkID    string  `json:"chunk_id"`
		Text       string  `json:"text"`
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]models.RetrievedChunk, len(rows))
	for i, r := range rows {
		hits[i] = models.RetrievedChunk{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Text:       r.Text,
			Score:      clampScore(r.Distance),
		}
	}
	return hits, nil
}

// DeleteByDocument queries the document's entity ids, then deletes by filter.
func (s *ZillizStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}
	filter := documentFilter([]string{documentID})
	env, err := s.post(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": s.collection,
		"filter":         filter,
		"outputFields":   []string{"id"},
	})
	if err != nil {
		return 0, err
	}
	if env.Code != 0 {
		return 0, fmt.Errorf("zilliz query: %s: %w", env.Message, ErrUnavailable)
	}
	var rows []map[string]any
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return 0, fmt.Errorf("decode query response: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	env, err = s.post(ctx, "/v2/vectordb/entities/delete", map[string]any{
		"collectionName": s.collection,
		"filter":         filter,
	})
	if err != nil {
		return 0, err
	}
	if env.Code != 0 {
		return 0, fmt.Errorf("zilliz delete: %s: %w", env.Message, ErrUnavailable)
	}
	return len(rows), nil
}

// documentFilter builds a Milvus boolean expression restricting to the given documents.
func documentFilter(documentIDs []string) string {
	quoted := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("document_id in [%s]", strings.Join(quoted, ", "))
}

// post sends one JSON request with bearer auth and decodes the response envelope.
func (s *ZillizStore) post(ctx context.Context, path string, body any) (*zillizEnvelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uri+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zilliz POST %s: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("zilliz POST %s: status %d: %w", path, resp.StatusCode, ErrUnavailable)
	}
	var env zillizEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}
