package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
)

// fakeZilliz serves the v2 vectordb endpoints with the code/data envelope.
type fakeZilliz struct {
	mux      *http.ServeMux
	upserted []map[string]any
	entities int
	auth     string
}

func newFakeZilliz(t *testing.T, existingDim int) (*fakeZilliz, *httptest.Server) {
	t.Helper()
	f := &fakeZilliz{mux: http.NewServeMux()}
	ok := func(w http.ResponseWriter, data any) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": data})
	}
	f.mux.HandleFunc("POST /v2/vectordb/collections/describe", func(w http.ResponseWriter, r *http.Request) {
		f.auth = r.Header.Get("Authorization")
		if existingDim == 0 {
			json.NewEncoder(w).Encode(map[string]any{"code": 100, "message": "collection not found"})
			return
		}
		ok(w, map[string]any{
			"fields": []map[string]any{
				{"name": "id", "type": "VarChar"},
				{"name": "vector", "type": "FloatVector", "params": []map[string]any{
					{"key": "dim", "value": strconv.Itoa(existingDim)},
				}},
			},
		})
	})
	f.mux.HandleFunc("POST /v2/vectordb/collections/create", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{})
	})
	f.mux.HandleFunc("POST /v2/vectordb/entities/upsert", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data []map[string]any `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.upserted = append(f.upserted, body.Data...)
		ok(w, map[string]any{"upsertCount": len(body.Data)})
	})
	f.mux.HandleFunc("POST /v2/vectordb/entities/search", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]any{
			{"distance": 0.88, "document_id": "d1", "chunk_id": "d1_0", "text": "alpha"},
			{"distance": 0.37, "document_id": "d1", "chunk_id": "d1_2", "text": "beta"},
		})
	})
	f.mux.HandleFunc("POST /v2/vectordb/entities/query", func(w http.ResponseWriter, r *http.Request) {
		rows := make([]map[string]any, f.entities)
		for i := range rows {
			rows[i] = map[string]any{"id": VectorID("d1", "x")}
		}
		ok(w, rows)
	})
	f.mux.HandleFunc("POST /v2/vectordb/entities/delete", func(w http.ResponseWriter, r *http.Request) {
		f.entities = 0
		ok(w, map[string]any{})
	})
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func zillizStore(uri string, dims int) *ZillizStore {
	return NewZillizStore(config.ZillizConfig{URI: uri, APIKey: "secret", Collection: "test"}, dims)
}

func TestZillizStore_Upsert(t *testing.T) {
	fake, srv := newFakeZilliz(t, 0)
	store := zillizStore(srv.URL, 3)

	ids, err := store.Upsert(context.Background(), []Record{
		{DocumentID: "d1", ChunkID: "d1_0", Index: 0, Text: "alpha", Vector: vec(3, 1)},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(ids) != 1 || ids[0] != VectorID("d1", "d1_0") {
		t.Errorf("ids = %v", ids)
	}
	if len(fake.upserted) != 1 {
		t.Fatalf("server saw %d entities", len(fake.upserted))
	}
	if fake.upserted[0]["document_id"] != "d1" || fake.upserted[0]["text"] != "alpha" {
		t.Errorf("entity = %+v", fake.upserted[0])
	}
	if fake.auth != "Bearer secret" {
		t.Errorf("authorization header = %q", fake.auth)
	}
}

func TestZillizStore_Search(t *testing.T) {
	_, srv := newFakeZilliz(t, 0)
	store := zillizStore(srv.URL, 3)

	hits, err := store.Search(context.Background(), vec(3, 1), []string{"d1"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ChunkID != "d1_0" || hits[0].Score != 0.88 {
		t.Errorf("hit[0] = %+v", hits[0])
	}
}

func TestZillizStore_DeleteByDocument(t *testing.T) {
	fake, srv := newFakeZilliz(t, 0)
	fake.entities = 3
	store := zillizStore(srv.URL, 3)

	n, err := store.DeleteByDocument(context.Background(), "d1")
	if err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}

	n, err = store.DeleteByDocument(context.Background(), "d1")
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 on repeat, got %d", n)
	}
}

func TestZillizStore_CollectionDimensionMismatch(t *testing.T) {
	_, srv := newFakeZilliz(t, 768)
	store := zillizStore(srv.URL, 3)

	_, err := store.Search(context.Background(), vec(3, 1), []string{"d1"}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestZillizStore_RecordDimensionMismatch(t *testing.T) {
	_, srv := newFakeZilliz(t, 0)
	store := zillizStore(srv.URL, 4)

	_, err := store.Upsert(context.Background(), []Record{
		{DocumentID: "d1", ChunkID: "d1_0", Vector: vec(3, 1)},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestZillizStore_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	store := zillizStore(srv.URL, 3)

	_, err := store.Upsert(context.Background(), []Record{
		{DocumentID: "d1", ChunkID: "d1_0", Vector: vec(3, 1)},
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDocumentFilter(t *testing.T) {
	got := documentFilter([]string{"a", "b"})
	want := `document_id in ["a", "b"]`
	if got != want {
		t.Errorf("filter = %s, want %s", got, want)
	}
}
